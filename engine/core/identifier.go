package core

import (
	"fmt"

	"github.com/google/uuid"
)

// IdentifierNew returns a unique debug name such as "swapchain-1b4e28ba".
func IdentifierNew(prefix string) string {
	id := uuid.New().String()
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", prefix, id[:8])
}
