package paramstore

import (
	"context"
	"fmt"
	"strings"
)

// Static serves parameters from memory. The terminal driver uses it when
// values come from flags or the environment instead of SSM.
type Static map[string]string

func (s Static) GetParameter(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	v, ok := s[name]
	if !ok {
		return "", fmt.Errorf("paramstore: parameter %q not found", name)
	}
	return v, nil
}

func (s Static) GetParameters(_ context.Context, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := s[name]; ok {
			values[name] = v
		}
	}
	return values, nil
}
