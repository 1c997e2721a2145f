package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	countResp  *pb.CountResponse
	countErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}
func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}
func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return m.countResp, m.countErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	createReq *pb.CreateCollection
	createErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReq = in
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}

// --- Tests ---

func TestCloseWithoutConn(t *testing.T) {
	vs := NewWithClients(nil, nil, "test")
	if err := vs.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureCollection(t *testing.T) {
	t.Run("already exists", func(t *testing.T) {
		cols := &mockCollections{listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "docs"}},
		}}
		vs := NewWithClients(&mockPoints{}, cols, "docs")
		if err := vs.EnsureCollection(context.Background(), 384); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cols.createReq != nil {
			t.Fatal("should not create an existing collection")
		}
	})

	t.Run("creates with cosine distance", func(t *testing.T) {
		cols := &mockCollections{listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "other"}},
		}}
		vs := NewWithClients(&mockPoints{}, cols, "docs")
		if err := vs.EnsureCollection(context.Background(), 384); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		params := cols.createReq.GetVectorsConfig().GetParams()
		if params.GetSize() != 384 || params.GetDistance() != pb.Distance_Cosine {
			t.Fatalf("unexpected params %v", params)
		}
	})

	t.Run("list error", func(t *testing.T) {
		cols := &mockCollections{listErr: errors.New("unavailable")}
		vs := NewWithClients(&mockPoints{}, cols, "docs")
		if err := vs.EnsureCollection(context.Background(), 4); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("create error", func(t *testing.T) {
		cols := &mockCollections{listResp: &pb.ListCollectionsResponse{}, createErr: errors.New("fail")}
		vs := NewWithClients(&mockPoints{}, cols, "docs")
		if err := vs.EnsureCollection(context.Background(), 4); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestInsertPayload(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "docs")

	err := vs.Insert(context.Background(), VectorRecord{
		ID:         "a1111111-1111-1111-1111-111111111111",
		DocID:      "job-1/review.txt",
		Source:     "review.txt",
		Content:    "Strong performance this quarter.",
		ChunkIndex: 2,
		Embedding:  []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upsertReq.GetCollectionName() != "docs" || !pts.upsertReq.GetWait() {
		t.Fatalf("unexpected request %v", pts.upsertReq)
	}
	p := pts.upsertReq.GetPoints()[0].GetPayload()
	if p["source"].GetStringValue() != "review.txt" || p["chunk_index"].GetIntegerValue() != 2 {
		t.Errorf("unexpected payload %v", p)
	}
	if p["content"].GetStringValue() != "Strong performance this quarter." {
		t.Errorf("unexpected content %v", p["content"])
	}
}

func TestInsertEmptyAndError(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("fail")}
	vs := NewWithClients(pts, &mockCollections{}, "docs")
	if err := vs.Insert(context.Background()); err != nil {
		t.Fatalf("empty insert should be a no-op, got %v", err)
	}
	if pts.upsertReq != nil {
		t.Fatal("empty insert should not call qdrant")
	}
	if err := vs.Insert(context.Background(), VectorRecord{ID: "x", Embedding: []float32{1}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestStoreSearch(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p1"}},
					Score: 0.5,
					Payload: map[string]*pb.Value{
						"content":     {Kind: &pb.Value_StringValue{StringValue: "Go, SQL"}},
						"doc_id":      {Kind: &pb.Value_StringValue{StringValue: "d1"}},
						"source":      {Kind: &pb.Value_StringValue{StringValue: "resume.docx"}},
						"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: 1}},
					},
				},
			},
		},
	}
	vs := NewWithClients(pts, &mockCollections{}, "docs")
	results, err := vs.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.searchReq.GetLimit() != 3 || pts.searchReq.GetFilter() != nil {
		t.Fatalf("unexpected request %v", pts.searchReq)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ID != "p1" || r.Score != 0.5 || r.Content != "Go, SQL" || r.Source != "resume.docx" || r.DocID != "d1" || r.ChunkIndex != 1 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestStoreSearchEdgeCasesAndErrors(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{}}
	vs := NewWithClients(pts, &mockCollections{}, "docs")

	res, err := vs.Search(context.Background(), []float32{1}, 0)
	if err != nil || len(res) != 0 {
		t.Fatalf("k=0 should return empty, got %v, %v", res, err)
	}

	pts.searchErr = errors.New("fail")
	if _, err := vs.Search(context.Background(), []float32{1}, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestStoreCount(t *testing.T) {
	pts := &mockPoints{countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 7}}}
	vs := NewWithClients(pts, &mockCollections{}, "docs")
	n, err := vs.Count(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("Count = %d, %v; want 7", n, err)
	}
	pts.countErr = errors.New("fail")
	if _, err := vs.Count(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
