package web

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/creack/pty/v2"
	"go.uber.org/zap"
)

type resizeMsg struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// tuiCommand runs this binary's tui against the session's sandbox ledger.
func (s *Server) tuiCommand(exe, sessionID string) *exec.Cmd {
	cmd := exec.Command(exe, "tui",
		"--db", s.dbPath(sessionID),
		"--account", sessionAccount(sessionID).String(),
		"--log-level", "error",
	)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")
	return cmd
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := readSessionID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	cols := parseUint16(r.URL.Query().Get("cols"), 80)
	rows := parseUint16(r.URL.Query().Get("rows"), 24)

	exe, err := os.Executable()
	if err != nil {
		s.log.Error("os.Executable", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "cannot find executable")
		return
	}

	cmd := s.tuiCommand(exe, sessionID)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		s.log.Error("pty start", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "failed to start pty")
		return
	}
	s.log.Info("terminal session started", zap.String("session", sessionID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	cleanup := func() {
		cancel()
		ptmx.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
		s.log.Info("terminal session ended", zap.String("session", sessionID))
	}
	defer once.Do(cleanup)

	// PTY -> WebSocket (binary frames to avoid UTF-8 validation issues)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := ptmx.Read(buf)
			if err != nil {
				s.log.Debug("pty read", zap.Error(err))
				once.Do(cleanup)
				conn.Close(websocket.StatusNormalClosure, "process exited")
				return
			}
			if err := conn.Write(ctx, websocket.MessageBinary, buf[:n]); err != nil {
				s.log.Debug("ws write", zap.Error(err))
				once.Do(cleanup)
				return
			}
		}
	}()

	// WebSocket -> PTY
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.log.Debug("ws read", zap.Error(err))
			return
		}

		if resize, ok := parseResize(data); ok {
			pty.Setsize(ptmx, &pty.Winsize{Rows: resize.Rows, Cols: resize.Cols})
			continue
		}

		if _, err := ptmx.Write(data); err != nil {
			return
		}
	}
}

func parseResize(data []byte) (resizeMsg, bool) {
	if !strings.HasPrefix(string(data), "{") {
		return resizeMsg{}, false
	}
	var resize resizeMsg
	if json.Unmarshal(data, &resize) != nil || resize.Type != "resize" {
		return resizeMsg{}, false
	}
	return resize, true
}

func parseUint16(s string, def uint16) uint16 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return def
	}
	return uint16(v)
}
