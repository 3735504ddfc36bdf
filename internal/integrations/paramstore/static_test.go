package paramstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatic_GetParameter(t *testing.T) {
	s := Static{"/lyzr/agent_id": "agent-1"}

	v, err := s.GetParameter(context.Background(), " /lyzr/agent_id ")
	require.NoError(t, err)
	require.Equal(t, "agent-1", v)

	_, err = s.GetParameter(context.Background(), "/lyzr/missing")
	require.ErrorContains(t, err, "not found")
}

func TestStatic_GetParametersSkipsMissing(t *testing.T) {
	s := Static{"/lyzr/agent_id": "agent-1"}

	values, err := s.GetParameters(context.Background(), "/lyzr/agent_id", "/lyzr/welcome_message")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"/lyzr/agent_id": "agent-1"}, values)
}
