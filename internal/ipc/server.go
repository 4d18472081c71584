package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"dealsync/internal/daemon"
	"dealsync/internal/logging"
	"dealsync/internal/logs"
	"dealsync/internal/store"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Dealsync", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun dealsync stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func convertUpload(item *store.UploadItem) UploadItem {
	return UploadItem{
		ID:            item.ID,
		LocalPath:     item.LocalPath,
		TargetPath:    item.TargetPath,
		PromptKey:     item.PromptKey,
		EvaluationID:  item.EvaluationID,
		OpportunityID: item.OpportunityID,
		MimeType:      item.MimeType,
		Status:        string(item.Status),
		RetryCount:    item.RetryCount,
		ErrorMessage:  item.ErrorMessage,
		MediaID:       item.MediaID,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		CompletedAt:   item.CompletedAt,
	}
}

func convertMutation(m *store.Mutation) MutationItem {
	return MutationItem{
		ID:         m.ID,
		Kind:       m.Kind,
		RetryCount: m.RetryCount,
		CreatedAt:  m.CreatedAt,
	}
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Online = status.Sync.IsOnline
	resp.Syncing = status.Sync.IsSyncing
	resp.PendingUploads = status.Sync.PendingUploads
	resp.PendingMutations = status.Sync.PendingMutations
	resp.FailedUploads = status.Sync.FailedUploads
	resp.LastSyncTime = status.Sync.LastSyncTime
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.Errors = make([]SyncError, 0, len(status.Sync.Errors))
	for _, e := range status.Sync.Errors {
		resp.Errors = append(resp.Errors, SyncError{
			ID:        e.ID,
			Type:      e.Type,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		})
	}
	return nil
}

func (s *service) SyncNow(_ SyncNowRequest, resp *SyncNowResponse) error {
	s.log().Debug("manual sync requested")
	if err := s.daemon.SyncNow(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "sync pass completed"
	s.log().Info("sync pass run via IPC",
		logging.String(logging.FieldEventType, "sync_manual"))
	return nil
}

func (s *service) EnqueueUpload(req EnqueueUploadRequest, resp *EnqueueUploadResponse) error {
	if req.LocalPath == "" {
		return errors.New("enqueue upload requires a local path")
	}
	item, err := s.daemon.EnqueueUpload(s.ctx, store.UploadItem{
		LocalPath:     req.LocalPath,
		TargetPath:    req.TargetPath,
		PromptKey:     req.PromptKey,
		EvaluationID:  req.EvaluationID,
		OpportunityID: req.OpportunityID,
		MimeType:      req.MimeType,
	})
	if err != nil {
		return err
	}
	resp.Item = convertUpload(item)
	s.log().Info("upload enqueued via IPC",
		logging.String(logging.FieldEventType, "upload_enqueued"),
		logging.String(logging.FieldItemID, item.ID))
	return nil
}

func (s *service) EnqueueMutation(req EnqueueMutationRequest, resp *EnqueueMutationResponse) error {
	if req.Kind == "" {
		return errors.New("enqueue mutation requires a kind")
	}
	id, err := s.daemon.EnqueueMutation(s.ctx, req.Kind, req.Payload)
	if err != nil {
		return err
	}
	resp.ID = id
	s.log().Info("mutation enqueued via IPC",
		logging.String(logging.FieldEventType, "mutation_enqueued"),
		logging.String(logging.FieldMutationKind, req.Kind),
		logging.String(logging.FieldItemID, id))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]store.UploadStatus, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := store.ParseUploadStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	uploads, err := s.daemon.ListUploads(s.ctx, statuses)
	if err != nil {
		return err
	}
	mutations, err := s.daemon.ListMutations(s.ctx)
	if err != nil {
		return err
	}
	resp.Uploads = make([]UploadItem, 0, len(uploads))
	for _, item := range uploads {
		if item == nil {
			continue
		}
		resp.Uploads = append(resp.Uploads, convertUpload(item))
	}
	resp.Mutations = make([]MutationItem, 0, len(mutations))
	for _, m := range mutations {
		if m == nil {
			continue
		}
		resp.Mutations = append(resp.Mutations, convertMutation(m))
	}
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	s.log().Debug("queue retry requested", logging.Int("item_count", len(req.IDs)))
	updated, err := s.daemon.RetryFailed(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("failed uploads retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueClearCompleted(req QueueClearCompletedRequest, resp *QueueClearCompletedResponse) error {
	s.log().Debug("queue clear completed requested")
	cutoff := time.Now()
	if req.MaxAgeHours > 0 {
		cutoff = cutoff.Add(-time.Duration(req.MaxAgeHours) * time.Hour)
	}
	removed, err := s.daemon.ClearCompleted(s.ctx, cutoff)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("completed uploads cleared",
		logging.String(logging.FieldEventType, "queue_clear_completed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) CacheClear(_ CacheClearRequest, resp *CacheClearResponse) error {
	s.log().Debug("cache clear requested")
	if err := s.daemon.ClearCache(s.ctx); err != nil {
		return err
	}
	resp.Cleared = true
	s.log().Info("entity cache cleared",
		logging.String(logging.FieldEventType, "cache_clear"))
	return nil
}

func (s *service) SignOut(_ SignOutRequest, resp *SignOutResponse) error {
	s.log().Debug("sign out requested")
	if err := s.daemon.SignOut(s.ctx); err != nil {
		return err
	}
	resp.Cleared = true
	s.log().Info("local state wiped",
		logging.String(logging.FieldEventType, "sign_out"))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
