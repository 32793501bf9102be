package manager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedbackTransitions(t *testing.T) {
	f := NewFeedback()

	f.MarkGood("http://a:1")
	f.MarkGood("http://a:1")
	f.MarkGood("http://b:1")

	good, dead := f.Counts()
	assert.Equal(t, 2, good)
	assert.Zero(t, dead)

	assert.True(t, f.MarkDead("http://a:1"))
	assert.False(t, f.MarkDead("http://a:1"), "second mark finds it already dead")
	assert.False(t, f.MarkDead("http://c:1"))

	assert.Equal(t, []string{"http://b:1"}, f.GoodKeys())
	assert.Equal(t, []string{"http://a:1", "http://c:1"}, f.DeadKeys())
	assert.False(t, f.IsGood("http://a:1"))
	assert.True(t, f.IsDead("http://a:1"))
}

func TestFeedbackGoodAfterDead(t *testing.T) {
	f := NewFeedback()

	f.MarkGood("http://a:1")
	f.MarkDead("http://a:1")
	f.MarkGood("http://a:1")

	assert.True(t, f.IsGood("http://a:1"))
	assert.True(t, f.IsDead("http://a:1"), "a good mark does not clear the dead one")
}

func TestFeedbackConcurrent(t *testing.T) {
	f := NewFeedback()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				f.MarkGood("http://a:1")
			} else {
				f.MarkDead("http://b:1")
			}
			f.Counts()
		}(i)
	}
	wg.Wait()

	good, dead := f.Counts()
	assert.Equal(t, 1, good)
	assert.Equal(t, 1, dead)
}
