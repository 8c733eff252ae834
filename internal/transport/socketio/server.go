// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// MountService is the mount manager surface the transport needs.
type MountService interface {
	Mount(ctx context.Context, req mounts.MountRequest) (mounts.MountResult, error)
	Unmount(ctx context.Context, mountpoint string, opts mounts.UnmountOptions) error
	ListMounted(ctx context.Context) []mounts.MountRecord
	Reconcile(ctx context.Context) (mounts.Report, error)
}

const broadcastWindow = 250 * time.Millisecond

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	mounts    MountService
	debouncer *BroadcastDebouncer
	limiter   *ClientLimiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// Option configures a Server.
type Option func(*Server)

// WithMaxRemoteClients caps concurrent non-loopback clients. The oldest
// remote client is disconnected when a new one exceeds the cap.
func WithMaxRemoteClients(n int) Option {
	return func(s *Server) {
		s.limiter = NewClientLimiter(n)
	}
}

// NewServer creates a new Socket.io server.
func NewServer(svc MountService, options ...Option) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		io:      socket.NewServer(nil, opts),
		mounts:  svc,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*socket.Socket),
		limiter: NewClientLimiter(0),
	}
	for _, opt := range options {
		opt(s)
	}
	s.debouncer = NewBroadcastDebouncer(broadcastWindow, s.BroadcastMounted)

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		addr := client.Handshake().Address

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		if evicted := s.limiter.Admit(clientID, addr); evicted != "" {
			s.evict(evicted)
		}

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
			s.limiter.Release(clientID)
		})

		// Mount and unmount block on the OS helper, so they run off the
		// socket's event loop.
		client.On("mount_samba", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("mount_samba")
			s.goHandle(func() {
				payload := s.mountSamba(s.ctx, args)
				client.Emit("pushMountSamba", payload)
				ack(args, payload)
			})
		})

		client.On("unmount_samba", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("unmount_samba")
			s.goHandle(func() {
				payload := s.unmountSamba(s.ctx, args)
				client.Emit("pushUnmountSamba", payload)
				ack(args, payload)
			})
		})

		client.On("list_mounted", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("list_mounted")
			s.goHandle(func() {
				list := mounts.Infos(s.mounts.ListMounted(s.ctx))
				client.Emit("pushListMounted", list)
				ack(args, list)
			})
		})
	})
}

// evict disconnects a client displaced by the remote client cap.
func (s *Server) evict(clientID string) {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	log.Info().Str("id", clientID).Msg("Disconnecting oldest remote client")
	client.Disconnect(true)
}

func (s *Server) goHandle(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// mountSamba runs a mount_samba request and builds the reply payload.
func (s *Server) mountSamba(ctx context.Context, args []any) MountPayload {
	req, err := parseMountRequest(args)
	if err != nil {
		return mountFailure(req, err)
	}

	res, err := s.mounts.Mount(ctx, req)
	if err != nil {
		return mountFailure(req, err)
	}
	if !res.AlreadyMounted {
		s.debouncer.Trigger()
	}
	return MountPayload{
		Success:        true,
		Mountpoint:     res.Mountpoint,
		Server:         res.Server,
		AlreadyMounted: res.AlreadyMounted,
		Message:        mountMessage(res),
	}
}

// unmountSamba runs an unmount_samba request and builds the reply payload.
func (s *Server) unmountSamba(ctx context.Context, args []any) UnmountPayload {
	mp, force, err := parseUnmountArgs(args)
	if err != nil {
		return unmountFailure(mp, err)
	}
	if err := s.mounts.Unmount(ctx, mp, mounts.UnmountOptions{Force: force}); err != nil {
		return unmountFailure(mp, err)
	}
	s.debouncer.Trigger()
	return UnmountPayload{
		Success:    true,
		Mountpoint: mp,
		Message:    "Unmounted " + mp,
	}
}

// BroadcastMounted sends the mounted list to all connected clients.
func (s *Server) BroadcastMounted() {
	list := mounts.Infos(s.mounts.ListMounted(s.ctx))
	s.io.Emit("pushListMounted", list)

	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()
	log.Debug().Int("mounts", len(list)).Int("clients", clientCount).Msg("Broadcast mounted list")
}

// NotifyChanged schedules a debounced pushListMounted broadcast.
func (s *Server) NotifyChanged() {
	s.debouncer.Trigger()
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops pending broadcasts, waits for in-flight handlers and closes
// the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.cancel()
	s.wg.Wait()
	s.io.Close(nil)
	return nil
}

// ack answers the client's acknowledgement callback when one was sent.
func ack(args []any, payload any) {
	if len(args) == 0 {
		return
	}
	if fn, ok := args[len(args)-1].(func([]any, error)); ok {
		fn([]any{payload}, nil)
	}
}
