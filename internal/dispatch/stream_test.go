package dispatch_test

import (
	"context"
	"strings"
	"testing"

	"github.com/memohai/streambind/internal/binding"
	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/dispatch"
	"github.com/memohai/streambind/internal/message"
)

func TestStreamTransformsMessages(t *testing.T) {
	t.Parallel()
	set := newSet(t,
		binding.Input("input", channel.Push, ""),
		binding.Output("output", channel.Pull, ""),
	)
	d := dispatch.New(nil, nil)
	err := d.RegisterStream(dispatch.StreamRegistration{
		Input:  "input",
		Output: "output",
		Handler: func(ctx context.Context, in <-chan *message.Message, send dispatch.SendFunc) {
			for msg := range in {
				upper := strings.ToUpper(msg.Payload().(string))
				if err := send(ctx, message.From(msg).WithPayload(upper).Build()); err != nil {
					return
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("RegisterStream: %v", err)
	}
	if err := d.Attach(context.Background(), set); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer d.Close()

	in, _ := set.Input("input")
	out, _ := set.Output("output")
	for _, p := range []string{"foo", "bar"} {
		if err := in.Send(context.Background(), message.New(p)); err != nil {
			t.Fatalf("Send(%s): %v", p, err)
		}
	}
	for _, want := range []string{"FOO", "BAR"} {
		if got := receive(t, out).Payload(); got != want {
			t.Fatalf("stream output = %v, want %s", got, want)
		}
	}
}

func TestStreamRegistrationValidation(t *testing.T) {
	t.Parallel()
	handler := func(context.Context, <-chan *message.Message, dispatch.SendFunc) {}

	cases := []struct {
		name    string
		reg     dispatch.StreamRegistration
		wantErr string
	}{
		{
			name:    "missing output",
			reg:     dispatch.StreamRegistration{Input: "input", Handler: handler},
			wantErr: "both an input and an output",
		},
		{
			name:    "missing input",
			reg:     dispatch.StreamRegistration{Output: "output", Handler: handler},
			wantErr: "both an input and an output",
		},
		{
			name: "declared output with stream handler",
			reg: dispatch.StreamRegistration{
				Input: "input", Output: "output", DeclaredOutput: true, Handler: handler,
			},
			wantErr: "handler parameter",
		},
		{
			name: "extra parameters",
			reg: dispatch.StreamRegistration{
				Input: "input", Output: "output",
				Extra:   []dispatch.Param{dispatch.Header("count")},
				Handler: handler,
			},
			wantErr: "additional parameters",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := dispatch.New(nil, nil)
			err := d.RegisterStream(tc.reg)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("RegisterStream = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestStreamUnknownSlots(t *testing.T) {
	t.Parallel()
	set := newSet(t, binding.Input("input", channel.Push, ""))
	handler := func(context.Context, <-chan *message.Message, dispatch.SendFunc) {}

	d := dispatch.New(nil, nil)
	err := d.RegisterStream(dispatch.StreamRegistration{Input: "input", Output: "missing", Handler: handler})
	if err != nil {
		t.Fatalf("RegisterStream: %v", err)
	}
	if err := d.Attach(context.Background(), set); err == nil || !strings.Contains(err.Error(), "unknown output channel") {
		t.Fatalf("Attach = %v, want unknown output channel error", err)
	}
}
