package pwm

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pigpioRequest struct {
	Cmd, P1, P2, P3, Ext uint32
}

// servePigpio answers pigpio socket commands on a local port, failing any
// command listed in fail.
func servePigpio(t *testing.T, fail map[uint32]bool) (string, <-chan pigpioRequest) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	requests := make(chan pigpioRequest, 64)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req cmd
			if err := binary.Read(conn, binary.LittleEndian, &req); err != nil {
				return
			}

			r := pigpioRequest{Cmd: req.Cmd, P1: req.P1, P2: req.P2, P3: req.P3}
			if req.Cmd == hp {
				if err := binary.Read(conn, binary.LittleEndian, &r.Ext); err != nil {
					return
				}
			}
			requests <- r

			res := cmd{Cmd: req.Cmd, P1: req.P1, P2: req.P2}
			if fail[req.Cmd] {
				res.P3 = uint32(0xffffffff) // -1
			}
			if err := binary.Write(conn, binary.LittleEndian, res); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String(), requests
}

func nextRequest(t *testing.T, requests <-chan pigpioRequest) pigpioRequest {
	t.Helper()

	select {
	case r := <-requests:
		return r
	case <-time.After(time.Second):
		t.Fatal("no request sent to pigpio")
		return pigpioRequest{}
	}
}

func TestPigpioPin(t *testing.T) {
	tests := []struct {
		name string
		pin  uint32
		err  bool
	}{
		{name: "PWM0", pin: 18},
		{name: "pwm1", pin: 13},
		{name: "12", pin: 12},
		{name: "BCM19", pin: 19},
		{name: "PWM9", err: true},
		{name: "99", err: true},
		{name: "", err: true},
	}

	for _, tt := range tests {
		pin, err := pigpioPin(tt.name)
		if tt.err {
			assert.ErrorIs(t, err, ErrUnknownChannel, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.pin, pin, tt.name)
	}
}

func TestPigpioChannel(t *testing.T) {
	addr, requests := servePigpio(t, nil)

	ch, err := Pigpio{Addr: addr}.Open("PWM0")
	require.NoError(t, err)

	// nothing is sent while the output is disabled
	require.NoError(t, ch.SetFrequencyHz(50))
	require.NoError(t, ch.SetDutyCyclePercent(7.5))
	assert.Empty(t, requests)

	require.NoError(t, ch.SetEnabled(true))
	assert.Equal(t, pigpioRequest{Cmd: hp, P1: 18, P2: 50, P3: 4, Ext: 75000}, nextRequest(t, requests))

	require.NoError(t, ch.SetDutyCyclePercent(2.5))
	assert.Equal(t, pigpioRequest{Cmd: hp, P1: 18, P2: 50, P3: 4, Ext: 25000}, nextRequest(t, requests))

	// 30 degrees on an SG90, 4.1666...%
	require.NoError(t, ch.SetDutyCyclePercent(2.5+10*30.0/180))
	assert.Equal(t, pigpioRequest{Cmd: hp, P1: 18, P2: 50, P3: 4, Ext: 41667}, nextRequest(t, requests))

	require.NoError(t, ch.SetDutyCyclePercent(0.57))
	assert.Equal(t, pigpioRequest{Cmd: hp, P1: 18, P2: 50, P3: 4, Ext: 5700}, nextRequest(t, requests))

	require.NoError(t, ch.SetEnabled(false))
	assert.Equal(t, pigpioRequest{Cmd: hp, P1: 18, P2: 0, P3: 4, Ext: 0}, nextRequest(t, requests))
	assert.Equal(t, pigpioRequest{Cmd: write, P1: 18, P2: 0}, nextRequest(t, requests))

	require.NoError(t, ch.Close())
	assert.Equal(t, hp, nextRequest(t, requests).Cmd)
	assert.Equal(t, write, nextRequest(t, requests).Cmd)

	assert.ErrorIs(t, ch.Close(), ErrClosed)
	assert.ErrorIs(t, ch.SetEnabled(true), ErrClosed)
}

func TestPigpioCommandFailure(t *testing.T) {
	addr, requests := servePigpio(t, map[uint32]bool{hp: true})

	ch, err := Pigpio{Addr: addr}.Open("PWM1")
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.SetFrequencyHz(50))
	err = ch.SetEnabled(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed with code -1")
	assert.Equal(t, uint32(13), nextRequest(t, requests).P1)
}

func TestPigpioRejectsBadValues(t *testing.T) {
	addr, _ := servePigpio(t, nil)

	ch, err := Pigpio{Addr: addr}.Open("PWM0")
	require.NoError(t, err)
	defer ch.Close()

	assert.Error(t, ch.SetDutyCyclePercent(101))
	assert.Error(t, ch.SetDutyCyclePercent(-1))
	assert.Error(t, ch.SetFrequencyHz(-50))
}

func TestPigpioDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Pigpio{Addr: addr}.Open("PWM0")
	assert.Error(t, err)

	_, err = Pigpio{Addr: addr}.Open("PWM5")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
