package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	getResp   *pb.GetCollectionInfoResponse
	getErr    error
	created   []string
	createErr error
	deleteErr error
}

func (m *mockCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return m.getResp, m.getErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = append(m.created, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}

func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{Result: true}, m.deleteErr
}

// --- Tests ---

func TestGRPCStore_Close(t *testing.T) {
	s := newGRPCStoreWithClients(&mockPoints{}, &mockCollections{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestGRPCStore_EnsureCollection(t *testing.T) {
	notFound := status.Error(codes.NotFound, "missing")
	tests := []struct {
		name        string
		cols        *mockCollections
		wantErr     bool
		wantCreated int
	}{
		{"exists", &mockCollections{getResp: &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{}}}, false, 0},
		{"missing", &mockCollections{getErr: notFound}, false, 1},
		{"get fails", &mockCollections{getErr: errors.New("rpc fail")}, true, 0},
		{"create fails", &mockCollections{getErr: notFound, createErr: errors.New("boom")}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newGRPCStoreWithClients(&mockPoints{}, tt.cols)
			err := s.EnsureCollection(context.Background(), "trips", 4, Cosine)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(tt.cols.created) != tt.wantCreated {
				t.Errorf("created = %v", tt.cols.created)
			}
		})
	}
}

func TestGRPCStore_GetCollectionNotFound(t *testing.T) {
	s := newGRPCStoreWithClients(&mockPoints{}, &mockCollections{getErr: status.Error(codes.NotFound, "x")})
	if _, err := s.GetCollection(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGRPCStore_DeleteCollection(t *testing.T) {
	s := newGRPCStoreWithClients(&mockPoints{}, &mockCollections{deleteErr: status.Error(codes.NotFound, "x")})
	if err := s.DeleteCollection(context.Background(), "x"); err != nil {
		t.Fatalf("NotFound should be ignored: %v", err)
	}
	s = newGRPCStoreWithClients(&mockPoints{}, &mockCollections{deleteErr: errors.New("fail")})
	if err := s.DeleteCollection(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestGRPCStore_RecreateCollection(t *testing.T) {
	cols := &mockCollections{deleteErr: status.Error(codes.NotFound, "x")}
	s := newGRPCStoreWithClients(&mockPoints{}, cols)
	for i := 0; i < 2; i++ {
		if err := s.RecreateCollection(context.Background(), "demo", 4, Dot); err != nil {
			t.Fatalf("Recreate: %v", err)
		}
	}
	if len(cols.created) != 2 {
		t.Errorf("created = %v", cols.created)
	}
}

func TestGRPCStore_Upsert(t *testing.T) {
	pts := &mockPoints{}
	s := newGRPCStoreWithClients(pts, &mockCollections{})

	if err := s.Upsert(context.Background(), "demo", nil); err != nil {
		t.Fatalf("empty upsert: %v", err)
	}
	if pts.upsertReq != nil {
		t.Fatal("empty upsert should not call the server")
	}

	err := s.Upsert(context.Background(), "demo", []Point{{
		ID:     "7",
		Vector: []float32{1, 2},
		Payload: map[string]any{
			"name":    "Pai",
			"visited": []any{map[string]any{"name": "Canyon", "latitude": 19.3}},
			"budget":  nil,
		},
	}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	p := pts.upsertReq.GetPoints()[0]
	if p.GetId().GetNum() != 7 {
		t.Errorf("numeric id not preserved: %v", p.GetId())
	}
	visited := p.GetPayload()["visited"].GetListValue().GetValues()
	if len(visited) != 1 || visited[0].GetStructValue().GetFields()["name"].GetStringValue() != "Canyon" {
		t.Errorf("nested payload = %v", visited)
	}
	if !pts.upsertReq.GetWait() {
		t.Error("upsert should wait")
	}
}

func TestGRPCStore_UpsertError(t *testing.T) {
	s := newGRPCStoreWithClients(&mockPoints{upsertErr: errors.New("fail")}, &mockCollections{})
	if err := s.Upsert(context.Background(), "demo", []Point{{ID: "a"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGRPCStore_Search(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{
			Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "u-1"}},
			Score: 0.5,
			Payload: map[string]*pb.Value{
				"name":     {Kind: &pb.Value_StringValue{StringValue: "Chiang Mai"}},
				"duration": {Kind: &pb.Value_IntegerValue{IntegerValue: 3}},
			},
		},
		{Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 9}}, Score: 0.4},
		{Score: 0.1},
	}}}
	s := newGRPCStoreWithClients(pts, &mockCollections{})

	recs, err := s.Search(context.Background(), SearchParams{Collection: "trips", Vector: []float32{1}, Limit: 3, WithPayload: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].ID != "u-1" || recs[0].Payload["name"] != "Chiang Mai" || recs[0].Payload["duration"] != int64(3) {
		t.Errorf("first = %+v", recs[0])
	}
	if recs[1].ID != "9" || recs[2].ID != UnknownID {
		t.Errorf("ids = %q, %q", recs[1].ID, recs[2].ID)
	}
	if pts.searchReq.GetLimit() != 3 {
		t.Errorf("limit = %d", pts.searchReq.GetLimit())
	}
}

func TestGRPCStore_SearchError(t *testing.T) {
	s := newGRPCStoreWithClients(&mockPoints{searchErr: errors.New("down")}, &mockCollections{})
	if _, err := s.Search(context.Background(), SearchParams{Collection: "x", Limit: 1}); err == nil {
		t.Fatal("expected error")
	}
}
