package services

import (
	"fmt"
	"strings"
	"time"

	"epubflow/internal/models"
)

// GreetingFunction builds responses for the hosted greeting endpoint.
type GreetingFunction struct {
	clock func() time.Time
}

// NewGreeting creates a new GreetingFunction instance.
func NewGreeting() *GreetingFunction {
	return &GreetingFunction{clock: time.Now}
}

// Process builds the greeting for name, falling back to "World" when no name
// was given.
func (f *GreetingFunction) Process(name string) models.GreetingResponse {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "World"
	}
	return models.GreetingResponse{
		Message: fmt.Sprintf("Hello, %s!", name),
		Time:    f.clock().UTC().Format(time.RFC3339),
		Status:  "ok",
	}
}
