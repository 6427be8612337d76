// Command raftbooking-node runs one replica of a raftbooking cluster:
// a Raft node replicating a room-booking ledger, fronted by a
// client-facing gRPC service.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"raftbooking/booking"
	"raftbooking/cluster"
	"raftbooking/internal/config"
	"raftbooking/internal/logging"
	"raftbooking/raft"
	"raftbooking/server"
	"raftbooking/storage"
)

func main() {
	configFile := flag.String("config", "", "path to a node config file (key = \"value\" format)")
	clientAddr := flag.String("client-addr", "", "address the booking client RPC listens on (defaults to the raft address with port+1)")
	dataDir := flag.String("data", "", "directory for the local audit log (defaults to <node-id>-data)")
	flag.Parse()

	mgr := config.Global()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("node")

	peerAddresses, peerIDs, err := parsePeers(cfg.Peers)
	if err != nil {
		logger.Error("failed to parse peers", "error", err.Error())
		os.Exit(1)
	}
	dir := cluster.NewDirectory(peerAddresses)
	logger.Info("cluster directory loaded", "peers", fmt.Sprintf("%d", dir.Count()))
	status := cluster.NewClusterStatus(dir, 5*cfg.HeartbeatInterval)

	dataDirectory := *dataDir
	if dataDirectory == "" {
		dataDirectory = cfg.NodeID + "-data"
	}
	auditStore, err := storage.NewAuditLog(dataDirectory)
	if err != nil {
		logger.Error("failed to open audit store", "error", err.Error())
		os.Exit(1)
	}
	defer auditStore.Close()

	ledger := booking.NewLedger(auditStore)

	node := raft.NewRaftNode(&raft.Config{
		ID:                 cfg.NodeID,
		Peers:              peerIDs,
		PeerAddresses:      peerAddresses,
		Address:            cfg.Self,
		StatePath:          cfg.StatePath,
		ElectionTimeoutMin: cfg.ElectionTimeoutMin,
		ElectionTimeoutMax: cfg.ElectionTimeoutMax,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		ApplyInterval:      cfg.ApplyInterval,
		StateMachine:       ledger,
		OnPeerSeen:         status.Observe,
	})

	if err := node.Start(); err != nil {
		logger.Error("failed to start raft node", "error", err.Error())
		os.Exit(1)
	}
	defer node.Shutdown()

	go logClusterStatus(logger, status, node, cfg.NodeID, 5*cfg.HeartbeatInterval)

	bookingAddr := *clientAddr
	if bookingAddr == "" {
		bookingAddr = defaultClientAddress(cfg.Self)
	}

	grpcServer := server.NewGRPCServer(node, ledger)
	if err := grpcServer.Start(bookingAddr); err != nil {
		logger.Error("failed to start booking service", "error", err.Error())
		os.Exit(1)
	}
	defer grpcServer.Stop()

	logger.Info("raftbooking node started",
		"node_id", cfg.NodeID,
		"raft_addr", cfg.Self,
		"client_addr", bookingAddr,
		"peers", fmt.Sprintf("%d", len(peerIDs)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
}

// parsePeers turns "id=host:port" entries into a nodeID -> address map
// and the ordered list of peer IDs raft.Config expects.
func parsePeers(entries []string) (map[string]string, []string, error) {
	addrs := make(map[string]string, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("malformed peer entry %q, expected id=host:port", entry)
		}
		id, addr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		addrs[id] = addr
		ids = append(ids, id)
	}
	return addrs, ids, nil
}

// logClusterStatus periodically logs a snapshot of peer liveness, built
// from Raft RPC round-trips observed via Config.OnPeerSeen.
func logClusterStatus(logger *logging.Logger, status *cluster.Status, node *raft.RaftNode, selfID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		term, isLeader := node.GetState()
		for _, peer := range status.Snapshot(selfID, term, isLeader) {
			role := "follower"
			if peer.ID == selfID {
				role = cluster.SelfRole(isLeader)
			}
			logger.Debug("peer status",
				"peer", peer.ID,
				"address", peer.Address,
				"role", role,
				"term", fmt.Sprintf("%d", peer.LastTerm),
				"stale", fmt.Sprintf("%v", peer.Stale))
		}
	}
}

// defaultClientAddress picks host:port+1 of the raft address as the
// booking service's listen address when the caller does not specify
// one explicitly.
func defaultClientAddress(raftAddr string) string {
	host, port, ok := strings.Cut(raftAddr, ":")
	if !ok {
		return "localhost:8080"
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return "localhost:8080"
	}
	return fmt.Sprintf("%s:%d", host, p+1)
}
