package util

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNet(t *testing.T) {
	lsnr, lerr := net.Listen("tcp", "localhost:0")
	if !assert.NoError(t, lerr) {
		return
	}

	t.Log("listening " + lsnr.Addr().String())

	go func() {
		cconn, cerr := net.Dial("tcp", lsnr.Addr().String())
		assert.NoError(t, cerr)

		cconn.Close()
	}()

	sconn, serr := lsnr.Accept()
	if !assert.NoError(t, serr) {
		return
	}

	t.Run("check error", func(tt *testing.T) {
		sconn.Close()
		_, err := sconn.Write([]byte("Hi"))
		if assert.Error(tt, err) {
			assert.True(tt, IsNetworkError(err))
			assert.True(tt, IsNetworkClosed(err))
			assert.False(tt, IsNetworkTimeout(err))
		}
	})

	t.Run("refused", func(tt *testing.T) {
		addr := lsnr.Addr().String()
		lsnr.Close()
		_, err := net.Dial("tcp", addr)
		if assert.Error(tt, err) {
			assert.True(tt, IsNetworkError(err))
		}
	})

	assert.True(t, IsNetworkTimeout(context.DeadlineExceeded))
	assert.False(t, IsNetworkError(nil))
}

func TestSplitHostPortDefault(t *testing.T) {
	host, port, err := SplitHostPortDefault("10.0.0.1", 4994)
	assert.NoError(t, err)
	assert.Equal(t, "10.0.0.1", host)
	assert.Equal(t, 4994, port)

	host, port, err = SplitHostPortDefault("peer-a.local:5000", 4994)
	assert.NoError(t, err)
	assert.Equal(t, "peer-a.local", host)
	assert.Equal(t, 5000, port)

	host, port, err = SplitHostPortDefault("[::1]:7000", 4994)
	assert.NoError(t, err)
	assert.Equal(t, "::1", host)
	assert.Equal(t, 7000, port)

	host, _, err = SplitHostPortDefault("::1", 4994)
	assert.NoError(t, err)
	assert.Equal(t, "::1", host)

	_, _, err = SplitHostPortDefault("host:99999", 4994)
	assert.ErrorContains(t, err, "invalid port '99999'")

	assert.Equal(t, "[::1]:4994", JoinHostPort("::1", 4994))
}

func TestLocalIPs(t *testing.T) {
	ips, err := ListLocalIPs()
	if !assert.NoError(t, err) {
		return
	}
	assert.True(t, ContainsIP(ips, "127.0.0.1"))
	assert.False(t, ContainsIP(ips, "not-an-ip"))
	assert.False(t, ContainsIP(ips, "192.0.2.123"))
}
