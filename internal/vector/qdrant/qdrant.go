// Package qdrant implements vector.Repository backed by Qdrant over gRPC.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/semanticvideo/internal/vector"
)

// Repository implements vector.Repository using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to Qdrant and ensures the collection exists with the
// given vector dimension (cosine metric).
func New(ctx context.Context, host string, port int, collection string, dimension int) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	r := &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}

	if err := r.ensureCollection(ctx, dimension); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

// Upsert writes all records in one call with wait=true, so either the
// whole batch is acknowledged or the call fails.
func (r *Repository) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: rec.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
			Payload: recordPayload(rec),
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (r *Repository) Search(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		Filter:         buildFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]vector.Match, len(resp.Result))
	for i, pt := range resp.Result {
		rec := recordFromPayload(pt.Id.GetUuid(), pt.Payload)
		matches[i] = vector.Match{
			ID: rec.ID,
			// Qdrant reports cosine similarity; convert to distance.
			Distance: 1 - float64(pt.Score),
			Record:   rec,
		}
	}
	return matches, nil
}

func (r *Repository) List(ctx context.Context, filter vector.Filter, limit int) ([]vector.Record, error) {
	var out []vector.Record
	var offset *pb.PointId

	pageSize := uint32(256)
	for {
		if limit > 0 && limit-len(out) < int(pageSize) {
			pageSize = uint32(limit - len(out))
		}

		resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: r.collection,
			Filter:         buildFilter(filter),
			Limit:          &pageSize,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}

		for _, pt := range resp.Result {
			out = append(out, recordFromPayload(pt.Id.GetUuid(), pt.Payload))
		}

		if resp.NextPageOffset == nil || len(resp.Result) == 0 {
			break
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		offset = resp.NextPageOffset
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context, filter vector.Filter) (int, error) {
	exact := true
	resp, err := r.points.Count(ctx, &pb.CountPoints{
		CollectionName: r.collection,
		Filter:         buildFilter(filter),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (r *Repository) DeleteVideo(ctx context.Context, videoID string) error {
	wait := true
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: buildFilter(vector.Filter{
					RecordType: vector.RecordTypeVideoFrame,
					VideoID:    videoID,
				}),
			},
		},
		Wait: &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant delete video: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

func buildFilter(f vector.Filter) *pb.Filter {
	var must []*pb.Condition
	if f.RecordType != "" {
		must = append(must, keywordCondition("record_type", string(f.RecordType)))
	}
	if f.VideoID != "" {
		must = append(must, keywordCondition("video_id", f.VideoID))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func recordPayload(rec vector.Record) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"record_type": {Kind: &pb.Value_StringValue{StringValue: string(rec.RecordType)}},
	}
	if rec.RecordType == vector.RecordTypeVideoFrame {
		payload["video_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.VideoID}}
		payload["video_path"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.VideoPath}}
		payload["frame_number"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(rec.FrameNumber)}}
		payload["timestamp_seconds"] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: rec.TimestampSeconds}}
		payload["sampling_rate"] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: rec.SamplingRate}}
	} else {
		payload["filename"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.Filename}}
		payload["content_type"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.ContentType}}
	}
	return payload
}

func recordFromPayload(id string, payload map[string]*pb.Value) vector.Record {
	rec := vector.Record{ID: id}
	for k, v := range payload {
		switch k {
		case "record_type":
			rec.RecordType = vector.RecordType(v.GetStringValue())
		case "video_id":
			rec.VideoID = v.GetStringValue()
		case "video_path":
			rec.VideoPath = v.GetStringValue()
		case "frame_number":
			rec.FrameNumber = int(v.GetIntegerValue())
		case "timestamp_seconds":
			rec.TimestampSeconds = v.GetDoubleValue()
		case "sampling_rate":
			rec.SamplingRate = v.GetDoubleValue()
		case "filename":
			rec.Filename = v.GetStringValue()
		case "content_type":
			rec.ContentType = v.GetStringValue()
		}
	}
	return rec
}
