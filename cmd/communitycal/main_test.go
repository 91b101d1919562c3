package main

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalBase(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080", localBase(&net.TCPAddr{IP: net.IPv6unspecified, Port: 8080}))
	assert.Equal(t, "http://127.0.0.1:9000", localBase(&net.TCPAddr{Port: 9000}))
	assert.Equal(t, "http://10.0.0.5:8080", localBase(&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 8080}))
}
