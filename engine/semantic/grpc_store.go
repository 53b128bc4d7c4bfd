package semantic

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// GRPCStore is a Store over Qdrant's gRPC port.
type GRPCStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
}

var _ Store = (*GRPCStore)(nil)

// DialGRPC connects to Qdrant at addr (host:6334).
func DialGRPC(addr string) (*GRPCStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &GRPCStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// newGRPCStoreWithClients wires explicit clients; used by tests.
func newGRPCStoreWithClients(points pointsAPI, collections collectionsAPI) *GRPCStore {
	return &GRPCStore{points: points, collections: collections}
}

// Close closes the underlying connection.
func (s *GRPCStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCStore) GetCollection(ctx context.Context, name string) (CollectionInfo, error) {
	resp, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return CollectionInfo{}, fmt.Errorf("semantic: collection %s: %w", name, ErrNotFound)
		}
		return CollectionInfo{}, fmt.Errorf("semantic: get collection %s: %w", name, err)
	}
	info := CollectionInfo{
		Name:        name,
		Status:      resp.GetResult().GetStatus().String(),
		PointsCount: int64(resp.GetResult().GetPointsCount()),
	}
	if params := resp.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		info.VectorSize = int(params.GetSize())
	}
	return info, nil
}

func (s *GRPCStore) CreateCollection(ctx context.Context, name string, size int, distance Distance) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(size),
					Distance: pbDistance(distance),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection deletes the collection; NotFound counts as success.
func (s *GRPCStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("semantic: delete collection %s: %w", name, err)
	}
	return nil
}

func (s *GRPCStore) RecreateCollection(ctx context.Context, name string, size int, distance Distance) error {
	if err := s.DeleteCollection(ctx, name); err != nil {
		return err
	}
	return s.CreateCollection(ctx, name, size, distance)
}

func (s *GRPCStore) EnsureCollection(ctx context.Context, name string, size int, distance Distance) error {
	_, err := s.GetCollection(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.CreateCollection(ctx, name, size, distance)
}

// Upsert stores points and waits for the write to be applied.
func (s *GRPCStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	pts := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*pb.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = toValue(v)
		}
		pts[i] = &pb.PointStruct{
			Id: pointID(p.ID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search performs k-NN similarity search. The gRPC response has one fixed
// shape, so hits map straight to Records.
func (s *GRPCStore) Search(ctx context.Context, p SearchParams) ([]Record, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: p.Collection,
		Vector:         p.Vector,
		Limit:          uint64(p.Limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: p.WithPayload}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := resp.GetResult()
	if p.Limit > 0 && len(hits) > p.Limit {
		hits = hits[:p.Limit]
	}
	out := make([]Record, len(hits))
	for i, h := range hits {
		payload := make(map[string]any, len(h.GetPayload()))
		for k, v := range h.GetPayload() {
			payload[k] = fromValue(v)
		}
		out[i] = Record{
			ID:      scoredID(h.GetId()),
			Score:   float64(h.GetScore()),
			Payload: payload,
		}
	}
	return out, nil
}

func pbDistance(d Distance) pb.Distance {
	switch d {
	case Euclidean:
		return pb.Distance_Euclid
	case Dot:
		return pb.Distance_Dot
	default:
		return pb.Distance_Cosine
	}
}

func pointID(id string) *pb.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: n}}
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func scoredID(id *pb.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *pb.PointId_Uuid:
		return v.Uuid
	case *pb.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	default:
		return UnknownID
	}
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(tv)}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(tv))
		for k, fv := range tv {
			fields[k] = toValue(fv)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	case []any:
		vals := make([]*pb.Value, len(tv))
		for i, lv := range tv {
			vals[i] = toValue(lv)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case []string:
		vals := make([]*pb.Value, len(tv))
		for i, s := range tv {
			vals[i] = toValue(s)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_StructValue:
		m := make(map[string]any, len(k.StructValue.GetFields()))
		for fk, fv := range k.StructValue.GetFields() {
			m[fk] = fromValue(fv)
		}
		return m
	case *pb.Value_ListValue:
		l := make([]any, len(k.ListValue.GetValues()))
		for i, lv := range k.ListValue.GetValues() {
			l[i] = fromValue(lv)
		}
		return l
	default:
		return nil
	}
}
