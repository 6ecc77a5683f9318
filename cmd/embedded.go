package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/simonvc/custody/internal/client"
	"github.com/simonvc/custody/internal/ledger"
	"github.com/simonvc/custody/internal/store"
	"go.uber.org/zap"
)

// startEmbedded serves the ledger in cfg.DB.Path on a loopback port and
// returns its URL once it answers. The server stops when ctx is cancelled.
func startEmbedded(ctx context.Context) (string, func(), error) {
	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return "", nil, fmt.Errorf("open database: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		st.Close()
		return "", nil, err
	}

	srv, err := buildServer(st, cfg, ln.Addr().String())
	if err != nil {
		ln.Close()
		st.Close()
		return "", nil, err
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx, ln); err != nil {
			logger.Error("embedded server", zap.Error(err))
		}
	}()
	stop := func() {
		cancel()
		<-done
		st.Close()
	}

	url := "http://" + ln.Addr().String()
	c := client.New(url, ledger.AccountID{})
	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	for {
		if err := c.Ping(waitCtx); err == nil {
			break
		}
		if waitCtx.Err() != nil {
			stop()
			return "", nil, fmt.Errorf("timeout waiting for embedded server")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return url, stop, nil
}
