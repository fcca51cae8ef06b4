// Package rpc provides Unix socket IPC between the fieldsync watch node and the hosts CLI.
package rpc

import (
	"errors"
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"
	"time"

	"github.com/rs/zerolog"

	"fieldsync/internal/store"
)

// NodeStatus describes the field currently bound by the watch node.
type NodeStatus struct {
	Bound    bool
	Host     string
	Session  string
	Received uint64
	Buffered int
	Offset   time.Duration
	Stutters int
	Err      string
}

// StatusFunc reports the live state of the watch node.
type StatusFunc func() NodeStatus

// Service is the RPC service exposed by the watch node.
type Service struct {
	store  *store.Store
	status StatusFunc
	log    zerolog.Logger
}

// ListHostsArgs is the request for ListHosts and ListActiveHosts.
type ListHostsArgs struct{}

// ListHostsReply is the response for ListHosts and ListActiveHosts.
type ListHostsReply struct {
	Hosts []store.HostRecord
}

// StatusArgs is the request for Status.
type StatusArgs struct{}

// StatusReply is the response for Status.
type StatusReply struct {
	Status NodeStatus
}

// ListHosts returns every host record ever seen.
func (s *Service) ListHosts(args *ListHostsArgs, reply *ListHostsReply) error {
	hosts, err := s.store.GetAll()
	if err != nil {
		return fmt.Errorf("fetching hosts: %w", err)
	}
	reply.Hosts = hosts
	return nil
}

// ListActiveHosts returns all active host records.
func (s *Service) ListActiveHosts(args *ListHostsArgs, reply *ListHostsReply) error {
	hosts, err := s.store.GetActive()
	if err != nil {
		return fmt.Errorf("fetching active hosts: %w", err)
	}
	reply.Hosts = hosts
	return nil
}

// Status returns the state of the bound field, if any.
func (s *Service) Status(args *StatusArgs, reply *StatusReply) error {
	if s.status != nil {
		reply.Status = s.status()
	}
	return nil
}

// Server is a running RPC listener.
type Server struct {
	listener net.Listener
	path     string
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	os.Remove(s.path)
	return err
}

// StartServer starts the Unix socket RPC server.
func StartServer(socketPath string, db *store.Store, status StatusFunc, log zerolog.Logger) (*Server, error) {
	service := &Service{store: db, status: status, log: log}

	server := netrpc.NewServer()
	if err := server.Register(service); err != nil {
		return nil, fmt.Errorf("registering RPC service: %w", err)
	}

	// Remove existing socket file if present
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	// Set socket permissions
	if err := os.Chmod(socketPath, 0660); err != nil {
		log.Warn().Err(err).Msg("Failed to set socket permissions")
	}

	log.Info().Str("socket", socketPath).Msg("RPC server started")

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Error().Err(err).Msg("RPC accept error")
				continue
			}
			go server.ServeConn(conn)
		}
	}()

	return &Server{listener: listener, path: socketPath}, nil
}

// Client is a client for the fieldsync RPC service.
type Client struct {
	client *netrpc.Client
}

// NewClient dials the Unix socket and returns an RPC client.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC socket %s: %w", socketPath, err)
	}
	return &Client{client: netrpc.NewClient(conn)}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// ListHosts fetches every known host from the node.
func (c *Client) ListHosts() ([]store.HostRecord, error) {
	reply := &ListHostsReply{}
	if err := c.client.Call("Service.ListHosts", &ListHostsArgs{}, reply); err != nil {
		return nil, err
	}
	return reply.Hosts, nil
}

// ListActiveHosts fetches all active hosts from the node.
func (c *Client) ListActiveHosts() ([]store.HostRecord, error) {
	reply := &ListHostsReply{}
	if err := c.client.Call("Service.ListActiveHosts", &ListHostsArgs{}, reply); err != nil {
		return nil, err
	}
	return reply.Hosts, nil
}

// Status fetches the state of the field bound by the node.
func (c *Client) Status() (NodeStatus, error) {
	reply := &StatusReply{}
	if err := c.client.Call("Service.Status", &StatusArgs{}, reply); err != nil {
		return NodeStatus{}, err
	}
	return reply.Status, nil
}
