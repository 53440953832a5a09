// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

// Package proxytest runs an in-process extension proxy for tests.
//
// The fake keeps intents in memory, acknowledges subscriptions the way the
// real proxy does and lets tests push arbitrary messages down every open
// event stream.
package proxytest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"reflect"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	cybervectorv1 "github.com/cyb3rdog/escapepod-sdk-go/pkg/proto/cybervector/v1"
)

// DefaultVersion is the version reported by GetStatus.
const DefaultVersion = "1.2.0"

type stream struct {
	uuid string
	ch   chan *cybervectorv1.ProxyMessage
	done chan struct{}
}

type intent struct {
	id  string
	doc string
}

// Server is a fake extension proxy.
type Server struct {
	cybervectorv1.UnimplementedCyberVectorProxyServiceServer

	version string
	tls     *tls.Config
	srv     *grpc.Server
	lis     net.Listener

	mu         sync.Mutex
	streams    map[string]*stream
	intents    []intent
	nextOID    int
	statusGate chan struct{}
	insertFail string
	keepAlives []int64
	subscribed chan string
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by GetStatus.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithTLS serves over TLS with cfg.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tls = cfg }
}

// New creates a fake proxy. Call Start to serve it.
func New(opts ...Option) *Server {
	s := &Server{
		version:    DefaultVersion,
		streams:    make(map[string]*stream),
		subscribed: make(chan string, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on a random localhost port and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return oops.Wrapf(err, "failed to listen")
	}
	s.lis = lis
	opts := cybervectorv1.ServerOptions()
	if s.tls != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tls)))
	}
	s.srv = grpc.NewServer(opts...)
	cybervectorv1.RegisterCyberVectorProxyServiceServer(s.srv, s)

	go func() { _ = s.srv.Serve(lis) }()
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Stop ends every stream and stops the server.
func (s *Server) Stop() {
	s.mu.Lock()
	for id, st := range s.streams {
		close(st.done)
		delete(s.streams, id)
	}
	if s.statusGate != nil {
		close(s.statusGate)
		s.statusGate = nil
	}
	s.mu.Unlock()
	if s.srv != nil {
		s.srv.Stop()
	}
}

// HoldStatus makes GetStatus block until the returned release is called or
// the call's context ends.
func (s *Server) HoldStatus() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.statusGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.statusGate == gate {
				s.statusGate = nil
				close(gate)
			}
			s.mu.Unlock()
		})
	}
}

// FailInserts makes InsertIntent answer FAILURE with msg. An empty msg
// restores normal behavior.
func (s *Server) FailInserts(msg string) {
	s.mu.Lock()
	s.insertFail = msg
	s.mu.Unlock()
}

// Subscribed returns a channel that receives the uuid of each new stream.
func (s *Server) Subscribed() <-chan string { return s.subscribed }

// Subscribers returns the number of open event streams.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// KeepAlives returns the keep-alive intervals requested by each Subscribe.
func (s *Server) KeepAlives() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.keepAlives...)
}

// Push sends a message down every open event stream.
func (s *Server) Push(t cybervectorv1.MessageType, data string) {
	msg := &cybervectorv1.ProxyMessage{MessageType: t, MessageData: data}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streams {
		select {
		case st.ch <- msg:
		case <-st.done:
		}
	}
}

// PushIntent pushes a ProcessIntent event.
func (s *Server) PushIntent(name, message string) {
	data, _ := sjson.Set(`{}`, "intent_name", name)
	data, _ = sjson.Set(data, "message", message)
	s.Push(cybervectorv1.MessageType_ProcessIntent, data)
}

// PushKeepAlive pushes a KeepAlive event.
func (s *Server) PushKeepAlive() {
	data, _ := sjson.Set(`{}`, "timestamp", time.Now().Unix())
	s.Push(cybervectorv1.MessageType_KeepAlive, data)
}

// GetStatus implements CyberVectorProxyServiceServer.
func (s *Server) GetStatus(ctx context.Context, _ *cybervectorv1.StatusRequest) (*cybervectorv1.StatusResponse, error) {
	s.mu.Lock()
	gate := s.statusGate
	subscribed := len(s.streams) > 0
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &cybervectorv1.StatusResponse{Version: s.version, Subscribed: subscribed}, nil
}

// Subscribe implements CyberVectorProxyServiceServer. The first message on
// the stream acknowledges the subscription with its uuid.
func (s *Server) Subscribe(req *cybervectorv1.SubscribeRequest, out grpc.ServerStreamingServer[cybervectorv1.ProxyMessage]) error {
	st := &stream{
		uuid: ulid.Make().String(),
		ch:   make(chan *cybervectorv1.ProxyMessage, 64),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.streams[st.uuid] = st
	s.keepAlives = append(s.keepAlives, req.GetKeepAlive())
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.streams[st.uuid]; ok {
			delete(s.streams, st.uuid)
			close(st.done)
		}
		s.mu.Unlock()
	}()

	ack, _ := sjson.Set(`{}`, "uuid", st.uuid)
	if err := out.Send(&cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_Subscribed, MessageData: ack}); err != nil {
		return err
	}
	select {
	case s.subscribed <- st.uuid:
	default:
	}

	for {
		select {
		case msg := <-st.ch:
			if err := out.Send(msg); err != nil {
				return err
			}
		case <-st.done:
			return s.drain(st, out)
		case <-out.Context().Done():
			return nil
		}
	}
}

// drain flushes messages queued before the stream was closed.
func (s *Server) drain(st *stream, out grpc.ServerStreamingServer[cybervectorv1.ProxyMessage]) error {
	for {
		select {
		case msg := <-st.ch:
			if err := out.Send(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// UnSubscribe implements CyberVectorProxyServiceServer. The matching stream
// receives an Unsubscribed acknowledgment and then ends.
func (s *Server) UnSubscribe(_ context.Context, req *cybervectorv1.UnsubscribeRequest) (*cybervectorv1.ProxyMessage, error) {
	ack, _ := sjson.Set(`{}`, "uuid", req.GetUuid())
	msg := &cybervectorv1.ProxyMessage{MessageType: cybervectorv1.MessageType_Unsubscribed, MessageData: ack}

	s.mu.Lock()
	st, ok := s.streams[req.GetUuid()]
	if ok {
		delete(s.streams, req.GetUuid())
		select {
		case st.ch <- msg:
		default:
		}
		close(st.done)
	}
	s.mu.Unlock()
	return msg, nil
}

func success() *cybervectorv1.ResponseMessage {
	return &cybervectorv1.ResponseMessage{Code: cybervectorv1.ResponseCode_SUCCESS, Message: "OK"}
}

func failure(msg string) *cybervectorv1.ResponseMessage {
	return &cybervectorv1.ResponseMessage{Code: cybervectorv1.ResponseCode_FAILURE, Message: msg}
}

// InsertIntent implements CyberVectorProxyServiceServer.
func (s *Server) InsertIntent(_ context.Context, req *cybervectorv1.InsertIntentRequest) (*cybervectorv1.InsertIntentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertFail != "" {
		return &cybervectorv1.InsertIntentResponse{Response: failure(s.insertFail)}, nil
	}
	doc := req.GetIntentData()
	if !gjson.Valid(doc) || !gjson.Parse(doc).IsObject() {
		return &cybervectorv1.InsertIntentResponse{Response: failure("intent data is not a JSON object")}, nil
	}

	s.nextOID++
	oid := fmt.Sprintf("%024x", s.nextOID)
	doc, err := sjson.Set(doc, "_id", map[string]string{"$oid": oid})
	if err != nil {
		return &cybervectorv1.InsertIntentResponse{Response: failure(err.Error())}, nil
	}
	s.intents = append(s.intents, intent{id: oid, doc: doc})
	return &cybervectorv1.InsertIntentResponse{Response: success(), InsertedOid: oid}, nil
}

// SelectIntents implements CyberVectorProxyServiceServer. The filter matches
// documents whose top-level fields equal every field of the filter.
func (s *Server) SelectIntents(_ context.Context, req *cybervectorv1.SelectIntentRequest) (*cybervectorv1.SelectIntentResponse, error) {
	filter := req.GetFilterJson()
	if filter == "" {
		filter = "{}"
	}
	if !gjson.Valid(filter) {
		return &cybervectorv1.SelectIntentResponse{Response: failure("filter is not valid JSON")}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &cybervectorv1.SelectIntentResponse{Response: success()}
	for _, in := range s.intents {
		if matches(in.doc, filter) {
			resp.IntentData = append(resp.IntentData, in.doc)
		}
	}
	return resp, nil
}

func matches(doc, filter string) bool {
	ok := true
	gjson.Parse(filter).ForEach(func(key, want gjson.Result) bool {
		got := gjson.Get(doc, gjson.Escape(key.String()))
		if !got.Exists() || !reflect.DeepEqual(got.Value(), want.Value()) {
			ok = false
		}
		return ok
	})
	return ok
}

// DeleteIntent implements CyberVectorProxyServiceServer.
func (s *Server) DeleteIntent(_ context.Context, req *cybervectorv1.DeleteIntentRequest) (*cybervectorv1.DeleteIntentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.intents[:0]
	var deleted int64
	for _, in := range s.intents {
		if in.id == req.GetIntentId() {
			deleted++
			continue
		}
		kept = append(kept, in)
	}
	s.intents = kept
	return &cybervectorv1.DeleteIntentResponse{Response: success(), DeletedCount: deleted}, nil
}

// Intents returns the stored intent documents.
func (s *Server) Intents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]string, 0, len(s.intents))
	for _, in := range s.intents {
		docs = append(docs, in.doc)
	}
	return docs
}
