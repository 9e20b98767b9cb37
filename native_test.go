package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropSubscribers(t *testing.T) {
	var s dropSubscribers
	var mu sync.Mutex
	var a, b [][]string

	unsubA := s.OnNativeDrop(func(p []string) { mu.Lock(); a = append(a, p); mu.Unlock() })
	unsubB := s.OnNativeDrop(func(p []string) { mu.Lock(); b = append(b, p); mu.Unlock() })
	assert.Equal(t, 2, s.count())

	s.publish([]string{`C:\x.txt`})
	s.publish(nil)

	unsubA()
	unsubA()
	assert.Equal(t, 1, s.count())

	s.publish([]string{`C:\y.txt`})
	unsubB()
	assert.Zero(t, s.count())

	assert.Equal(t, [][]string{{`C:\x.txt`}}, a)
	assert.Equal(t, [][]string{{`C:\x.txt`}, {`C:\y.txt`}}, b)
}
