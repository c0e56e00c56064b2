package linkbridge

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/handsfree-core/internal/headset"
)

type fakeLinked struct {
	asked []headset.ConnectionState
	ids   []headset.DeviceID
}

func (f *fakeLinked) DevicesMatchingStates(states ...headset.ConnectionState) []headset.DeviceID {
	f.asked = states
	return f.ids
}

type failingConfirmer struct {
	got  []headset.Confirmation
	fail headset.DeviceID
}

func (f *failingConfirmer) Confirm(_ context.Context, c headset.Confirmation) error {
	f.got = append(f.got, c)
	if c.Device == f.fail {
		return errors.New("refused")
	}
	return nil
}

func TestReleaseAll(t *testing.T) {
	const (
		a = headset.DeviceID("00:1A:7D:DA:71:13")
		b = headset.DeviceID("00:1A:7D:DA:71:14")
	)
	devices := &fakeLinked{ids: []headset.DeviceID{a, b}}
	confirmer := &failingConfirmer{fail: b}

	n, err := ReleaseAll(context.Background(), devices, confirmer)
	if n != 1 {
		t.Errorf("released = %d, want 1", n)
	}
	if err == nil {
		t.Error("expected the failed confirmation to be reported")
	}

	if len(devices.asked) != 3 {
		t.Errorf("asked for states %v, want connecting, connected, disconnecting", devices.asked)
	}
	for _, s := range devices.asked {
		if s == headset.StateDisconnected {
			t.Error("must not release already disconnected headsets")
		}
	}

	want := headset.ConnectionConfirmation(a, headset.StateDisconnected)
	if len(confirmer.got) != 2 || confirmer.got[0] != want {
		t.Errorf("confirmations = %+v", confirmer.got)
	}
}

func TestReleaseAll_AgainstService(t *testing.T) {
	const addr = headset.DeviceID("00:1A:7D:DA:71:15")
	svc := headset.NewService(headset.NewMemoryPriorityStore(), headset.LinkFunc(func(context.Context, headset.LinkCommand) error {
		return nil
	}), headset.Options{})
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Stop()

	if !svc.Connect(ctx, addr) {
		t.Fatal("Connect() refused")
	}
	if err := svc.Confirm(ctx, headset.ConnectionConfirmation(addr, headset.StateConnected)); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if err := svc.Confirm(ctx, headset.AudioConfirmation(addr, headset.AudioConnected)); err != nil {
		t.Fatalf("Confirm(audio) error = %v", err)
	}

	n, err := ReleaseAll(ctx, svc, svc)
	if err != nil || n != 1 {
		t.Fatalf("ReleaseAll() = %d, %v; want 1, nil", n, err)
	}
	if got := svc.ConnectionState(addr); got != headset.StateDisconnected {
		t.Errorf("ConnectionState = %v, want disconnected", got)
	}
	if got := svc.AudioState(addr); got != headset.AudioDisconnected {
		t.Errorf("AudioState = %v, want disconnected", got)
	}
}
