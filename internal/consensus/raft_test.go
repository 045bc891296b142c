package consensus

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNode_SingleNodeBypassesLog(t *testing.T) {
	sm := NewStateMachine(testManifest(t))
	node := NewNode(Config{NodeID: "n1", SingleNode: true}, sm, nil)
	node.Run()
	defer node.Stop()

	cmd := Command{
		RequestID: "req-1",
		Type:      CmdCreateBackup,
		Payload:   mustPayload(t, CreateBackupPayload{ID: "backup-1", SourcePath: "/data"}),
	}

	result, err := node.Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Error != "" {
		t.Fatalf("Submit() result.Error = %s", result.Error)
	}
	if len(node.log) != 0 {
		t.Errorf("single-node Submit should never append to the log, got len %d", len(node.log))
	}
}

func TestNode_NonLeaderRejectsSubmit(t *testing.T) {
	sm := NewStateMachine(testManifest(t))
	node := NewNode(Config{
		NodeID: "n1",
		Peers:  []PeerConfig{{ID: "n1", Addr: "n1:8080"}, {ID: "n2", Addr: "n2:8080"}},
	}, sm, &fakeTransport{})

	_, err := node.Submit(context.Background(), Command{RequestID: "req-1", Type: CmdLog})
	if err == nil {
		t.Fatal("Submit() on a non-leader follower should fail")
	}
	if _, ok := err.(*NotLeaderError); !ok {
		t.Errorf("err = %T, want *NotLeaderError", err)
	}
}

func TestNode_LeaderReplicatesAndCommitsWithQuorum(t *testing.T) {
	sm := NewStateMachine(testManifest(t))
	ft := &fakeTransport{appendSuccess: true}
	node := NewNode(Config{
		NodeID: "n1",
		Peers:  []PeerConfig{{ID: "n1", Addr: "n1:8080"}, {ID: "n2", Addr: "n2:8080"}, {ID: "n3", Addr: "n3:8080"}},
	}, sm, ft)

	node.mu.Lock()
	node.role = Leader
	node.leaderID = node.id
	node.mu.Unlock()

	cmd := Command{
		RequestID: "req-1",
		Type:      CmdCreateBackup,
		Payload:   mustPayload(t, CreateBackupPayload{ID: "backup-1", SourcePath: "/data"}),
	}

	result, err := node.Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Error != "" {
		t.Fatalf("Submit() result.Error = %s", result.Error)
	}

	var b struct {
		ID string
	}
	if err := json.Unmarshal(result.Payload, &b); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if b.ID != "backup-1" {
		t.Errorf("backup id = %q, want %q", b.ID, "backup-1")
	}
}

func TestNode_HandleRequestVote_GrantsOncePerTerm(t *testing.T) {
	sm := NewStateMachine(testManifest(t))
	node := NewNode(Config{NodeID: "n2"}, sm, &fakeTransport{})

	req := VoteRequest{Term: 1, CandidateID: "n1"}
	resp := node.HandleRequestVote(req)
	if !resp.VoteGranted {
		t.Fatal("first vote request in a new term should be granted")
	}

	resp2 := node.HandleRequestVote(VoteRequest{Term: 1, CandidateID: "n3"})
	if resp2.VoteGranted {
		t.Fatal("a second candidate in the same term should not get this node's vote")
	}
}

// fakeTransport stands in for HTTPTransport in tests so no real network
// calls happen.
type fakeTransport struct {
	appendSuccess bool
	voteGranted   bool
}

func (f *fakeTransport) AppendEntries(addr string, req AppendEntriesRequest) (AppendEntriesResponse, error) {
	return AppendEntriesResponse{Term: req.Term, Success: f.appendSuccess}, nil
}

func (f *fakeTransport) RequestVote(addr string, req VoteRequest) (VoteResponse, error) {
	return VoteResponse{Term: req.Term, VoteGranted: f.voteGranted}, nil
}

func (f *fakeTransport) InstallSnapshot(addr string, req InstallSnapshotRequest) (InstallSnapshotResponse, error) {
	return InstallSnapshotResponse{Term: req.Term}, nil
}
