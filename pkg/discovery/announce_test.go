package discovery

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AriBhuiya/ferry/pkg/errs"
)

type fakeRegistration struct {
	calls int
	err   error
}

func (r *fakeRegistration) Shutdown() error {
	r.calls++
	return r.err
}

type fakeRegistrar struct {
	err error
	reg *fakeRegistration

	instance, serviceType, domain string
	port                          uint16
	txt                           []string
}

func (f *fakeRegistrar) Register(instance, serviceType, domain string, port uint16, txt []string) (Registration, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.instance, f.serviceType, f.domain, f.port, f.txt = instance, serviceType, domain, port, txt
	if f.reg == nil {
		f.reg = &fakeRegistration{}
	}
	return f.reg, nil
}

func TestAnnounceRegistersWithPortAttribute(t *testing.T) {
	reg := &fakeRegistrar{}
	a := NewAnnouncer(reg)
	a.Logger = zap.NewNop()

	ann, err := a.Announce("  brave-otter ", 3625, map[string]string{"ver": "1"})
	require.NoError(t, err)
	defer ann.Close()

	assert.Equal(t, "brave-otter", reg.instance)
	assert.Equal(t, ServiceType, reg.serviceType)
	assert.Equal(t, Domain, reg.domain)
	assert.Equal(t, uint16(3625), reg.port)
	assert.Equal(t, []string{"port=3625", "ver=1"}, reg.txt)
	assert.Equal(t, "brave-otter._ferry._tcp.local.", ann.Fullname())
}

func TestAnnounceDoesNotMutateCallerAttrs(t *testing.T) {
	attrs := map[string]string{"ver": "1"}
	ann, err := (&Announcer{Registrar: &fakeRegistrar{}, Logger: zap.NewNop()}).Announce("x", 1, attrs)
	require.NoError(t, err)
	ann.Close()
	assert.Equal(t, map[string]string{"ver": "1"}, attrs)
}

func TestAnnounceRejectsMalformedRecords(t *testing.T) {
	cases := map[string]struct {
		name  string
		attrs map[string]string
	}{
		"empty name":      {name: "   "},
		"long name":       {name: strings.Repeat("n", 64)},
		"control char":    {name: "bad\x01name"},
		"empty key":       {name: "ok", attrs: map[string]string{"": "v"}},
		"key with equals": {name: "ok", attrs: map[string]string{"a=b": "v"}},
		"oversized entry": {name: "ok", attrs: map[string]string{"k": strings.Repeat("v", 254)}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			reg := &fakeRegistrar{}
			_, err := (&Announcer{Registrar: reg, Logger: zap.NewNop()}).Announce(tc.name, 1, tc.attrs)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindConfig), "got %v", err)
			assert.Empty(t, reg.instance, "registrar must not be called")
		})
	}
}

func TestAnnounceRegistrarFailure(t *testing.T) {
	boom := errors.New("daemon unavailable")
	_, err := (&Announcer{Registrar: &fakeRegistrar{err: boom}, Logger: zap.NewNop()}).Announce("x", 1, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindDiscovery))
	assert.ErrorIs(t, err, boom)
}

func TestAnnouncementCloseOnceAndSwallowsErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reg := &fakeRegistrar{reg: &fakeRegistration{err: errors.New("socket gone")}}
	a := &Announcer{Registrar: reg, Logger: zap.New(core)}

	ann, err := a.Announce("brave-otter", 3625, nil)
	require.NoError(t, err)

	ann.Close()
	ann.Close()

	assert.Equal(t, 1, reg.reg.calls)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to unregister service", logs.All()[0].Message)
}

type countingRegistrar struct{ n atomic.Int32 }

func (c *countingRegistrar) Register(instance, serviceType, domain string, port uint16, txt []string) (Registration, error) {
	c.n.Add(1)
	return &fakeRegistration{}, nil
}

func TestAnnounceSharedAnnouncerLeavesFieldsAlone(t *testing.T) {
	reg := &countingRegistrar{}
	a := &Announcer{Registrar: reg, Logger: zap.NewNop()}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ann, err := a.Announce("brave-otter", 3625, nil)
			if assert.NoError(t, err) {
				assert.Equal(t, "brave-otter._ferry._tcp.local.", ann.Fullname())
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 4, reg.n.Load())
	assert.Empty(t, a.ServiceType)
	assert.Empty(t, a.Domain)
}
