package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"pkt.systems/pslog"
)

func newBackendMockCmd() *cobra.Command {
	var network string
	var addr string
	var delayMS int
	var scenario string
	cmd := &cobra.Command{
		Use:   "backend-mock",
		Short: "Mock Codex backend speaking the panel wire protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackendMock(cmd.Context(), mockBackendConfig{
				network:  network,
				addr:     addr,
				delay:    time.Duration(delayMS) * time.Millisecond,
				scenario: scenario,
			})
		},
	}
	cmd.Flags().StringVar(&network, "network", "tcp", "listen network (tcp or unix)")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:27490", "listen address")
	cmd.Flags().IntVar(&delayMS, "delay-ms", 30, "delay between emitted frames")
	cmd.Flags().StringVar(&scenario, "scenario", "command", "run scenario (command, summary, failure)")
	return cmd
}

type mockBackendConfig struct {
	network  string
	addr     string
	delay    time.Duration
	scenario string
}

func runBackendMock(ctx context.Context, cfg mockBackendConfig) error {
	logger := pslog.Ctx(ctx)
	listener, err := net.Listen(cfg.network, cfg.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	logger.Info("backend mock listening", "network", cfg.network, "addr", cfg.addr, "scenario", cfg.scenario)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go serveMockConn(ctx, conn, cfg, logger)
	}
}

func serveMockConn(ctx context.Context, conn net.Conn, cfg mockBackendConfig, logger pslog.Logger) {
	defer func() { _ = conn.Close() }()
	session := &mockSession{conn: conn, cfg: cfg, log: logger}
	session.writeFrame(session.cliDefaultsFrame())

	reader := bufio.NewReader(conn)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if err != io.EOF {
				logger.Debug("backend mock read failed", "err", err)
			}
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		session.handle(line)
	}
}

type mockSession struct {
	conn net.Conn
	cfg  mockBackendConfig
	log  pslog.Logger

	mu   sync.Mutex
	runs int
}

func (s *mockSession) handle(frame []byte) {
	msg := gjson.ParseBytes(frame)
	kind := msg.Get("type").String()
	s.log.Debug("backend mock frame received", "kind", kind)
	switch kind {
	case "start_session":
		s.handleStartSession(msg)
	case "send":
		s.handleSend(msg)
	case "cancel":
		s.writeFrame(s.doneFrame(msg.Get("runId").String(), "", 0, true))
	case "refresh_rate_limits":
		s.writeFrame(s.rateLimitsFrame())
	case "delete_all_sessions":
		out := newMockFrame("delete_all_sessions")
		out = setJSON(out, "ok", true)
		out = setJSON(out, "deletedCount", s.runs)
		s.writeFrame(out)
	case "end_session", "delete_session":
		// Nothing to clean up in a mock.
	default:
		out := newMockFrame("error")
		out = setJSON(out, "message", fmt.Sprintf("unsupported message type %q", kind))
		s.writeFrame(out)
	}
}

func (s *mockSession) handleStartSession(msg gjson.Result) {
	threadID := msg.Get("sessionId").String()
	notice := ""
	if threadID == "" {
		threadID = uuid.NewString()
	} else if msg.Get("forceNewThread").Bool() {
		notice = "Started a new conversation thread."
	}
	out := newMockFrame("status")
	out = setJSON(out, "state", "ready")
	out = setJSON(out, "sessionId", threadID)
	out = setJSON(out, "sessionContextKey", msg.Get("sessionContextKey").String())
	out = setJSON(out, "notebookPath", msg.Get("notebookPath").String())
	out = setJSON(out, "pairedOk", true)
	out = setJSON(out, "pairedPath", msg.Get("notebookPath").String())
	if notice != "" {
		out = setJSON(out, "sessionResolutionNotice", notice)
	}
	s.writeFrame(out)
}

func (s *mockSession) handleSend(msg gjson.Result) {
	s.mu.Lock()
	s.runs++
	runID := fmt.Sprintf("run-%d", s.runs)
	s.mu.Unlock()

	key := msg.Get("sessionContextKey").String()
	content := msg.Get("content").String()

	status := newMockFrame("status")
	status = setJSON(status, "state", "running")
	status = setJSON(status, "runId", runID)
	status = setJSON(status, "sessionContextKey", key)
	s.writeFrame(status)

	switch s.cfg.scenario {
	case "failure":
		s.pause()
		out := newMockFrame("error")
		out = setJSON(out, "message", "mock failure: simulated run error")
		out = setJSON(out, "runId", runID)
		s.writeFrame(out)
		return
	case "summary":
		s.pause()
		s.writeFrame(s.eventFrame(runID, key, reasoningPayload("Summarizing the notebook before answering.")))
	default:
		s.pause()
		s.writeFrame(s.eventFrame(runID, key, commandPayload("bash -lc ls", false)))
		s.pause()
		s.writeFrame(s.eventFrame(runID, key, commandPayload("bash -lc ls", true)))
	}

	s.pause()
	output := newMockFrame("output")
	output = setJSON(output, "runId", runID)
	output = setJSON(output, "sessionContextKey", key)
	output = setJSON(output, "role", "assistant")
	output = setJSON(output, "text", fmt.Sprintf("Mock response: handled request %q.", content))
	s.writeFrame(output)

	s.pause()
	s.writeFrame(s.doneFrame(runID, key, 0, false))
}

func (s *mockSession) doneFrame(runID, key string, exitCode int, cancelled bool) []byte {
	out := newMockFrame("done")
	if runID == "" {
		runID = "run-0"
	}
	out = setJSON(out, "runId", runID)
	if key != "" {
		out = setJSON(out, "sessionContextKey", key)
	}
	out = setJSON(out, "exitCode", exitCode)
	if cancelled {
		out = setJSON(out, "cancelled", true)
	}
	return out
}

func (s *mockSession) eventFrame(runID, key string, payload []byte) []byte {
	out := newMockFrame("event")
	out = setJSON(out, "runId", runID)
	out = setJSON(out, "sessionContextKey", key)
	out, err := sjson.SetRawBytes(out, "payload", payload)
	if err != nil {
		s.log.Warn("backend mock frame build failed", "err", err)
	}
	return out
}

func (s *mockSession) cliDefaultsFrame() []byte {
	out := newMockFrame("cli_defaults")
	out = setJSON(out, "model", "gpt-5.2-codex")
	out = setJSON(out, "reasoningEffort", "medium")
	out, _ = sjson.SetRawBytes(out, "availableModels", []byte(`[{"model":"gpt-5.2-codex","reasoningEfforts":["low","medium","high"],"defaultReasoningEffort":"medium"}]`))
	return out
}

func (s *mockSession) rateLimitsFrame() []byte {
	out := newMockFrame("rate_limits")
	out, _ = sjson.SetRawBytes(out, "snapshot", []byte(`{"primary":{"used_percent":12,"window_minutes":300},"secondary":{"used_percent":4,"window_minutes":10080}}`))
	return out
}

func (s *mockSession) writeFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Write(append(frame, '\n')); err != nil {
		s.log.Debug("backend mock write failed", "err", err)
	}
}

func (s *mockSession) pause() {
	if s.cfg.delay > 0 {
		time.Sleep(s.cfg.delay)
	}
}

func newMockFrame(kind string) []byte {
	out := []byte(`{}`)
	out = setJSON(out, "type", kind)
	out = setJSON(out, "protocolVersion", "1.0.0")
	return out
}

func setJSON(frame []byte, path string, value any) []byte {
	out, err := sjson.SetBytes(frame, path, value)
	if err != nil {
		return frame
	}
	return out
}

func reasoningPayload(text string) []byte {
	out := []byte(`{"type":"item.completed"}`)
	out = setJSON(out, "item.type", "reasoning")
	out = setJSON(out, "item.text", text)
	return out
}

func commandPayload(command string, completed bool) []byte {
	kind := "item.started"
	if completed {
		kind = "item.completed"
	}
	out := []byte(`{}`)
	out = setJSON(out, "type", kind)
	out = setJSON(out, "item.type", "command_execution")
	out = setJSON(out, "item.command", command)
	if completed {
		out = setJSON(out, "item.exit_code", 0)
	}
	return out
}
