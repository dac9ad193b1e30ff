package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
)

// SocketServer broadcasts JSON lines to local clients over a unix socket.
type SocketServer struct {
	path    string
	logger  *zap.Logger
	mu      sync.RWMutex
	clients map[net.Conn]bool
	ready   chan struct{}
}

// NewSocketServer creates a server listening on path once Serve runs.
func NewSocketServer(path string, logger *zap.Logger) *SocketServer {
	return &SocketServer{
		path:    path,
		logger:  logger.Named("socket"),
		clients: make(map[net.Conn]bool),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the socket accepts connections.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve accepts clients until ctx is cancelled, then closes every
// connection and removes the socket file.
func (s *SocketServer) Serve(ctx context.Context) error {
	os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	os.Chmod(s.path, 0700)
	close(s.ready)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.clients[conn] = true
		s.mu.Unlock()
		s.logger.Debug("client connected", zap.Int("clients", s.ClientCount()))

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleClient(conn)
		}()
	}

	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()
	wg.Wait()
	os.Remove(s.path)
	return nil
}

// Broadcast writes msg as one JSON line to every client.
func (s *SocketServer) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to encode broadcast", zap.Error(err))
		return
	}
	data = append(data, '\n')

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.clients {
		if _, err := conn.Write(data); err != nil {
			s.logger.Debug("write failed", zap.Error(err))
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *SocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleClient drains the connection until the client goes away. Clients
// only listen; anything they send is ignored.
func (s *SocketServer) handleClient(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
		s.logger.Debug("client disconnected", zap.Int("clients", s.ClientCount()))
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
	}
}

// Listen connects to the socket at path and streams state updates until ctx
// is cancelled or the server goes away, then closes the channel.
func Listen(ctx context.Context, path string) (<-chan StateUpdate, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}

	out := make(chan StateUpdate, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var u StateUpdate
			if err := json.Unmarshal(scanner.Bytes(), &u); err != nil || u.Type != TypeStateUpdate {
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
