package sim_test

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/netseqs/seqs"
	"github.com/netseqs/seqs/sim"
	"github.com/pkg/errors"
)

func testConfig(drop ...int) sim.Config {
	cfg := sim.DefaultConfig()
	ciss, siss := uint32(100), uint32(300)
	cfg.ClientISS, cfg.ServerISS = &ciss, &siss
	cfg.Drop = drop
	return cfg
}

func testLogger(t *testing.T) *slog.Logger {
	if !testing.Verbose() {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRun(t *testing.T) {
	const latency = 10 * time.Millisecond
	hello := []byte("hello world\n")
	tests := []struct {
		name string
		drop []int
		want sim.Result
	}{
		{
			// SYN, SYN-ACK, ACK, data+FIN, ACK.
			name: "lossless",
			want: sim.Result{Sent: 5, Elapsed: 4 * latency},
		},
		{
			name: "drop_syn",
			drop: []int{0},
			want: sim.Result{Sent: 6, Dropped: 1, Retransmissions: 1, Elapsed: seqs.RTOInit + 4*latency},
		},
		{
			// The client retransmits its SYN before the server's SYN-ACK timer fires.
			name: "drop_synack",
			drop: []int{1},
			want: sim.Result{Sent: 7, Dropped: 1, Retransmissions: 2, Elapsed: latency + seqs.RTOInit + 3*latency},
		},
		{
			name: "drop_data",
			drop: []int{3},
			want: sim.Result{Sent: 6, Dropped: 1, Retransmissions: 1, Elapsed: 2*latency + seqs.RTOInit + 2*latency},
		},
		{
			// The server must acknowledge the duplicate data+FIN in CLOSE-WAIT.
			name: "drop_last_ack",
			drop: []int{4},
			want: sim.Result{Sent: 7, Dropped: 1, Retransmissions: 1, Elapsed: 2*latency + seqs.RTOInit + 2*latency},
		},
		{
			name: "drop_data_twice",
			drop: []int{3, 4},
			want: sim.Result{Sent: 7, Dropped: 2, Retransmissions: 2, Elapsed: 2*latency + 3*seqs.RTOInit + 2*latency},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(tt.drop...)
			cfg.Latency = latency
			got, err := sim.Run(context.Background(), cfg, testLogger(t))
			if err != nil {
				t.Fatal(err)
			}
			want := tt.want
			want.ClientState = seqs.StateFinWait2
			want.ServerState = seqs.StateCloseWait
			want.Delivered = hello
			if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(sim.Result{}, "Steps")); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_segmented(t *testing.T) {
	payload := strings.Repeat("0123456789", 10)
	for _, tc := range []struct {
		name    string
		mss     uint32
		sendBuf int
		drop    []int
	}{
		{name: "small_mss", mss: 7, sendBuf: 2048},
		{name: "small_send_buffer", mss: 536, sendBuf: 16},
		{name: "small_both_lossy", mss: 5, sendBuf: 12, drop: []int{4, 9}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(tc.drop...)
			cfg.MSS = tc.mss
			cfg.SendBuffer = tc.sendBuf
			cfg.Payload = payload
			got, err := sim.Run(context.Background(), cfg, testLogger(t))
			if err != nil {
				t.Fatal(err)
			}
			if string(got.Delivered) != payload {
				t.Errorf("delivered %q, want %q", got.Delivered, payload)
			}
			if got.ClientState != seqs.StateFinWait2 || got.ServerState != seqs.StateCloseWait {
				t.Errorf("end states client=%s server=%s", got.ClientState, got.ServerState)
			}
			if got.Dropped != len(tc.drop) {
				t.Errorf("dropped %d, want %d", got.Dropped, len(tc.drop))
			}
			if len(tc.drop) > 0 && got.Retransmissions == 0 {
				t.Error("expected retransmissions after loss")
			}
		})
	}
}

func TestRun_emptyPayload(t *testing.T) {
	cfg := testConfig()
	cfg.Payload = ""
	got, err := sim.Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	// SYN, SYN-ACK, ACK, FIN, ACK.
	if got.Sent != 5 || len(got.Delivered) != 0 || got.ClientState != seqs.StateFinWait2 {
		t.Errorf("unexpected result %s", got)
	}
}

func TestRun_maxSteps(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSteps = 2
	_, err := sim.Run(context.Background(), cfg, nil)
	if diff := cmp.Diff(sim.ErrMaxSteps, err, cmpopts.EquateErrors()); diff != "" {
		t.Error(diff)
	}
}

func TestRun_invalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RecvBuffer = 4
	if _, err := sim.Run(context.Background(), cfg, nil); err == nil {
		t.Error("expected error for receive buffer smaller than payload")
	}
}

func TestRun_realtime(t *testing.T) {
	cfg := testConfig()
	cfg.Realtime = true
	cfg.Latency = time.Millisecond
	got, err := sim.Run(context.Background(), cfg, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Delivered) != cfg.Payload {
		t.Errorf("delivered %q", got.Delivered)
	}
	if got.Elapsed < 4*cfg.Latency {
		t.Errorf("elapsed %s shorter than four one-way delays", got.Elapsed)
	}
}

func TestRun_realtimeCancel(t *testing.T) {
	cfg := testConfig(0, 1, 2, 3)
	cfg.Realtime = true
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := sim.Run(ctx, cfg, nil)
	if diff := cmp.Diff(context.DeadlineExceeded, err, cmpopts.EquateErrors()); diff != "" {
		t.Error(diff)
	}
	if elapsed := time.Since(start); elapsed > seqs.RTOInit/2 {
		t.Errorf("cancellation took %s", elapsed)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := sim.LoadConfig(filepath.Join("testdata", "lossy.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := sim.DefaultConfig()
	ciss, siss := uint32(1000), uint32(2000)
	want.ClientISS, want.ServerISS = &ciss, &siss
	want.MSS = 4
	want.Payload = "hello lossy world\n"
	want.Drop = []int{2, 5}
	want.Latency = 25 * time.Millisecond
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	got, err := sim.Run(context.Background(), cfg, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Delivered) != want.Payload || got.Dropped != 2 {
		t.Errorf("unexpected result %s", got)
	}
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{name: "empty", yaml: ""},
		{name: "defaults_overridden", yaml: "mss: 100\nrealtime: false\n"},
		{name: "unknown_field", yaml: "mss: 100\nwindow_scale: 7\n", wantErr: true},
		{name: "zero_mss", yaml: "mss: 0\n", wantErr: true},
		{name: "bad_addr", yaml: "client_addr: not-an-ip\n", wantErr: true},
		{name: "ipv6_addr", yaml: "server_addr: \"::1\"\n", wantErr: true},
		{name: "negative_drop", yaml: "drop: [1, -1]\n", wantErr: true},
		{name: "bad_latency", yaml: "latency: soon\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.ParseConfig(strings.NewReader(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("got err=%v, want error=%v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_missing(t *testing.T) {
	_, err := sim.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
