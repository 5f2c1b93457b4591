package util

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPerrorCollectsTaggedErrors checks that errors reported from
// concurrent workers arrive tagged with their thread name and that nil
// errors are dropped.
func TestPerrorCollectsTaggedErrors(t *testing.T) {
	pe := NewPerror(4)

	var wg sync.WaitGroup
	for _, name := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			pe.Append(name, errors.New("boom"))
			pe.Append(name, nil)
		}(name)
	}
	wg.Wait()
	pe.Stop()

	assert.Equal(t, 2, pe.Len())
	assert.ElementsMatch(t, []string{"alpha", "beta"}, pe.Threads())
	for te := range pe.Errors() {
		assert.NotEmpty(t, te.Thread)
		assert.Contains(t, te.Error(), te.Thread+": ")
	}
}
