// Package dynamo implements the storage engine contract on a single
// DynamoDB table. Graph metadata, nodes and edges are items under two
// partition layouts: metadata lives under a shared "GRAPH" partition so one
// query lists every graph, and each graph's content lives under its own
// partition so snapshots read one partition sequentially.
//
// DynamoDB has no traversal primitive, so impact and neighbour expansion
// load the edge list and run the BFS in process.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"graphserver/application/ports"
	"graphserver/domain/graph"
	apperrors "graphserver/pkg/errors"
)

// BatchWriteItem accepts at most 25 requests per call.
const batchWriteSize = 25

// Engine serves the storage contract from one DynamoDB table.
type Engine struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

var _ ports.Engine = (*Engine)(nil)

// New creates a DynamoDB-backed engine. The table must already exist with
// PK (partition) and SK (sort) string keys.
func New(client *dynamodb.Client, tableName string, logger *zap.Logger) *Engine {
	return &Engine{client: client, tableName: tableName, logger: logger}
}

// Capabilities implements ports.Engine. There is no query dialect to
// expose: PartiQL support is deliberately not wired to the raw endpoint.
func (e *Engine) Capabilities() ports.Capabilities {
	return ports.Capabilities{MultiDatabase: false, DefaultDatabase: e.tableName, RawQuery: false}
}

// metaItem is the DynamoDB item for graph metadata.
type metaItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	GraphID     string `dynamodbav:"GraphID"`
	Title       string `dynamodbav:"Title"`
	Description string `dynamodbav:"Description"`
	GraphType   string `dynamodbav:"GraphType"`
	NodeCount   int64  `dynamodbav:"NodeCount"`
	EdgeCount   int64  `dynamodbav:"EdgeCount"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
}

// nodeItem is the DynamoDB item for one node.
type nodeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	NodeID     string `dynamodbav:"NodeID"`
	Label      string `dynamodbav:"Label"`
	NodeType   string `dynamodbav:"NodeType"`
	Properties string `dynamodbav:"Properties"`
}

// edgeItem is the DynamoDB item for one edge.
type edgeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	SourceID   string `dynamodbav:"SourceID"`
	TargetID   string `dynamodbav:"TargetID"`
	EdgeType   string `dynamodbav:"EdgeType"`
	Label      string `dynamodbav:"Label"`
	Properties string `dynamodbav:"Properties"`
}

const (
	metaPartition = "GRAPH"
	metaSKPrefix  = "META#"
	nodeSKPrefix  = "NODE#"
	edgeSKPrefix  = "EDGE#"
)

func graphPartition(graphID string) string { return "GRAPH#" + graphID }

func (m metaItem) summary() graph.Summary {
	created, _ := time.Parse(time.RFC3339Nano, m.CreatedAt)
	return graph.Summary{
		ID:          m.GraphID,
		Title:       m.Title,
		Description: m.Description,
		GraphType:   m.GraphType,
		NodeCount:   m.NodeCount,
		EdgeCount:   m.EdgeCount,
		CreatedAt:   created,
	}
}

func (n nodeItem) node() graph.Node {
	return graph.Node{
		ID:         n.NodeID,
		Label:      n.Label,
		Type:       n.NodeType,
		Properties: graph.UnmarshalProperties(n.Properties),
	}
}

func (i edgeItem) edge() graph.Edge {
	return graph.Edge{
		Source:     i.SourceID,
		Target:     i.TargetID,
		Type:       i.EdgeType,
		Label:      i.Label,
		Properties: graph.UnmarshalProperties(i.Properties),
	}
}

// checkDatabase rejects any database selector other than the table itself.
func (e *Engine) checkDatabase(database string) error {
	if database == "" || database == e.tableName {
		return nil
	}
	return apperrors.NewNotFound("database %q not found, engine is bound to table %q", database, e.tableName)
}

// ListDatabases implements ports.Engine.
func (e *Engine) ListDatabases(ctx context.Context) ([]graph.DatabaseInfo, error) {
	status := "online"
	if err := e.Ping(ctx); err != nil {
		status = "unreachable"
	}
	return []graph.DatabaseInfo{{Name: e.tableName, Default: true, Status: status}}, nil
}

// ListGraphs implements ports.Engine. All metadata shares one partition,
// so a single paginated query lists every graph.
func (e *Engine) ListGraphs(ctx context.Context, database string) ([]graph.Summary, error) {
	if err := e.checkDatabase(database); err != nil {
		return nil, err
	}

	var summaries []graph.Summary
	var startKey map[string]types.AttributeValue
	for {
		out, err := e.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(e.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: metaPartition},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, e.translate(err)
		}
		for _, item := range out.Items {
			var m metaItem
			if err := attributevalue.UnmarshalMap(item, &m); err != nil {
				return nil, apperrors.NewInternal("unmarshal graph metadata", err)
			}
			summaries = append(summaries, m.summary())
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	if summaries == nil {
		summaries = []graph.Summary{}
	}
	return summaries, nil
}

func (e *Engine) getMeta(ctx context.Context, graphID string) (*metaItem, error) {
	out, err := e.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(e.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: metaPartition},
			"SK": &types.AttributeValueMemberS{Value: metaSKPrefix + graphID},
		},
	})
	if err != nil {
		return nil, e.translate(err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFound("graph %q not found", graphID)
	}
	var m metaItem
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, apperrors.NewInternal("unmarshal graph metadata", err)
	}
	return &m, nil
}

// loadContent reads every node and edge item of one graph partition.
func (e *Engine) loadContent(ctx context.Context, graphID string) ([]graph.Node, []graph.Edge, error) {
	nodes := []graph.Node{}
	edges := []graph.Edge{}

	var startKey map[string]types.AttributeValue
	for {
		out, err := e.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(e.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: graphPartition(graphID)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, nil, e.translate(err)
		}
		for _, item := range out.Items {
			sk := stringAttr(item, "SK")
			switch {
			case strings.HasPrefix(sk, nodeSKPrefix):
				var n nodeItem
				if err := attributevalue.UnmarshalMap(item, &n); err != nil {
					return nil, nil, apperrors.NewInternal("unmarshal node item", err)
				}
				nodes = append(nodes, n.node())
			case strings.HasPrefix(sk, edgeSKPrefix):
				var edge edgeItem
				if err := attributevalue.UnmarshalMap(item, &edge); err != nil {
					return nil, nil, apperrors.NewInternal("unmarshal edge item", err)
				}
				edges = append(edges, edge.edge())
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return nodes, edges, nil
}

// GetGraph implements ports.Engine.
func (e *Engine) GetGraph(ctx context.Context, database, graphID string) (*graph.Data, error) {
	if err := e.checkDatabase(database); err != nil {
		return nil, err
	}
	meta, err := e.getMeta(ctx, graphID)
	if err != nil {
		return nil, err
	}
	nodes, edges, err := e.loadContent(ctx, graphID)
	if err != nil {
		return nil, err
	}
	return &graph.Data{Summary: meta.summary(), Nodes: nodes, Edges: edges}, nil
}

// GetGraphStats implements ports.Engine.
func (e *Engine) GetGraphStats(ctx context.Context, database, graphID string) (*graph.Stats, error) {
	if err := e.checkDatabase(database); err != nil {
		return nil, err
	}
	if _, err := e.getMeta(ctx, graphID); err != nil {
		return nil, err
	}
	nodes, edges, err := e.loadContent(ctx, graphID)
	if err != nil {
		return nil, err
	}

	stats := &graph.Stats{
		NodeCount: int64(len(nodes)),
		EdgeCount: int64(len(edges)),
		NodeTypes: map[string]int64{},
		EdgeTypes: map[string]int64{},
	}
	for _, n := range nodes {
		stats.NodeTypes[n.Type]++
	}
	for _, edge := range edges {
		stats.EdgeTypes[edge.Type]++
	}
	if stats.NodeCount > 0 {
		stats.AvgDegree = float64(stats.EdgeCount) / float64(stats.NodeCount)
	}
	return stats, nil
}

// CreateGraph implements ports.Engine. The metadata put is conditional on
// the id being unused; content items follow in write batches. A failure
// mid-batch leaves a partial graph that RecountGraph can reconcile, since
// DynamoDB offers no multi-item transaction at this size.
func (e *Engine) CreateGraph(ctx context.Context, database string, spec ports.CreateGraphSpec) (*graph.Summary, error) {
	if err := e.checkDatabase(database); err != nil {
		return nil, err
	}

	// BatchWriteItem rejects batches containing duplicate keys, so parallel
	// edges must collapse before the items are built.
	specEdges := graph.DedupeEdges(spec.Edges)
	summary := graph.Summary{
		ID:          graph.NewGraphID(),
		Title:       spec.Title,
		Description: spec.Description,
		GraphType:   spec.GraphType,
		NodeCount:   int64(len(spec.Nodes)),
		EdgeCount:   int64(len(specEdges)),
		CreatedAt:   time.Now().UTC(),
	}

	meta := metaItem{
		PK:          metaPartition,
		SK:          metaSKPrefix + summary.ID,
		EntityType:  "GRAPH",
		GraphID:     summary.ID,
		Title:       summary.Title,
		Description: summary.Description,
		GraphType:   summary.GraphType,
		NodeCount:   summary.NodeCount,
		EdgeCount:   summary.EdgeCount,
		CreatedAt:   summary.CreatedAt.Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(meta)
	if err != nil {
		return nil, apperrors.NewInternal("marshal graph metadata", err)
	}
	_, err = e.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(e.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return nil, e.translate(err)
	}

	writes, err := contentWrites(summary.ID, spec.Nodes, specEdges)
	if err != nil {
		return nil, err
	}
	if err := e.batchWrite(ctx, writes); err != nil {
		return nil, err
	}

	e.logger.Info("graph persisted",
		zap.String("graphID", summary.ID),
		zap.Int64("nodes", summary.NodeCount),
		zap.Int64("edges", summary.EdgeCount),
	)
	return &summary, nil
}

// contentWrites builds the put requests for a graph's nodes and edges.
// Edges must already be deduplicated on (source, target): two items with
// the same key in one batch would fail the whole BatchWriteItem call.
func contentWrites(graphID string, nodes []graph.Node, edges []graph.Edge) ([]types.WriteRequest, error) {
	writes := make([]types.WriteRequest, 0, len(nodes)+len(edges))
	partition := graphPartition(graphID)
	for _, n := range nodes {
		item, err := attributevalue.MarshalMap(nodeItem{
			PK:         partition,
			SK:         nodeSKPrefix + n.ID,
			EntityType: "NODE",
			NodeID:     n.ID,
			Label:      n.Label,
			NodeType:   n.Type,
			Properties: graph.MarshalProperties(n.Properties),
		})
		if err != nil {
			return nil, apperrors.NewInternal("marshal node item", err)
		}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	for _, edge := range edges {
		item, err := attributevalue.MarshalMap(edgeItem{
			PK:         partition,
			SK:         edgeSKPrefix + edge.Source + "#" + edge.Target,
			EntityType: "EDGE",
			SourceID:   edge.Source,
			TargetID:   edge.Target,
			EdgeType:   edge.Type,
			Label:      edge.Label,
			Properties: graph.MarshalProperties(edge.Properties),
		})
		if err != nil {
			return nil, apperrors.NewInternal("marshal edge item", err)
		}
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	return writes, nil
}

// batchWrite sends write requests in chunks of 25, retrying unprocessed
// items with a short backoff until DynamoDB accepts them all.
func (e *Engine) batchWrite(ctx context.Context, writes []types.WriteRequest) error {
	for start := 0; start < len(writes); start += batchWriteSize {
		end := min(start+batchWriteSize, len(writes))
		pending := writes[start:end]

		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return apperrors.NewStoreUnavailable("dynamodb", ctx.Err())
				case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
				}
			}
			if attempt > 5 {
				return apperrors.NewStoreUnavailable("dynamodb",
					fmt.Errorf("%d write requests still unprocessed after retries", len(pending)))
			}

			out, err := e.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{e.tableName: pending},
			})
			if err != nil {
				return e.translate(err)
			}
			pending = out.UnprocessedItems[e.tableName]
		}
	}
	return nil
}

// DeleteGraph implements ports.Engine.
func (e *Engine) DeleteGraph(ctx context.Context, database, graphID string) error {
	if err := e.checkDatabase(database); err != nil {
		return err
	}
	if _, err := e.getMeta(ctx, graphID); err != nil {
		return err
	}

	// Collect the content keys first; deletes go out in write batches.
	var deletes []types.WriteRequest
	var startKey map[string]types.AttributeValue
	for {
		out, err := e.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(e.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ProjectionExpression:   aws.String("PK, SK"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: graphPartition(graphID)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return e.translate(err)
		}
		for _, item := range out.Items {
			deletes = append(deletes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: item},
			})
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	if err := e.batchWrite(ctx, deletes); err != nil {
		return err
	}

	_, err := e.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(e.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: metaPartition},
			"SK": &types.AttributeValueMemberS{Value: metaSKPrefix + graphID},
		},
	})
	return e.translate(err)
}

// GetNodeNeighbors implements ports.Engine.
func (e *Engine) GetNodeNeighbors(ctx context.Context, database, graphID, nodeID string, hops int) (*graph.Data, error) {
	if err := e.checkDatabase(database); err != nil {
		return nil, err
	}
	meta, err := e.getMeta(ctx, graphID)
	if err != nil {
		return nil, err
	}
	nodes, edges, err := e.loadContent(ctx, graphID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]graph.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	if _, ok := byID[nodeID]; !ok {
		return nil, apperrors.NewNotFound("node %q not found in graph %q", nodeID, graphID)
	}

	reached := undirectedReach(edges, nodeID, hops)
	data := &graph.Data{Summary: meta.summary(), Nodes: []graph.Node{}, Edges: []graph.Edge{}}
	for id := range reached {
		if n, ok := byID[id]; ok {
			data.Nodes = append(data.Nodes, n)
		}
	}
	sort.Slice(data.Nodes, func(i, j int) bool { return data.Nodes[i].ID < data.Nodes[j].ID })
	for _, edge := range edges {
		if _, okS := reached[edge.Source]; !okS {
			continue
		}
		if _, okT := reached[edge.Target]; !okT {
			continue
		}
		data.Edges = append(data.Edges, edge)
	}
	return data, nil
}

// ComputeImpact implements ports.Engine.
func (e *Engine) ComputeImpact(ctx context.Context, database, graphID, sourceID string, depth int) (*graph.ImpactResult, error) {
	if err := e.checkDatabase(database); err != nil {
		return nil, err
	}
	if _, err := e.getMeta(ctx, graphID); err != nil {
		return nil, err
	}
	nodes, edges, err := e.loadContent(ctx, graphID)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.ID] = struct{}{}
	}
	if _, ok := known[sourceID]; !ok {
		return nil, apperrors.NewNotFound("node %q not found in graph %q", sourceID, graphID)
	}

	return &graph.ImpactResult{ImpactedNodes: forwardReach(edges, sourceID, depth)}, nil
}

// RecountGraph implements ports.Engine.
func (e *Engine) RecountGraph(ctx context.Context, database, graphID string) (*graph.Summary, error) {
	if err := e.checkDatabase(database); err != nil {
		return nil, err
	}
	meta, err := e.getMeta(ctx, graphID)
	if err != nil {
		return nil, err
	}
	nodes, edges, err := e.loadContent(ctx, graphID)
	if err != nil {
		return nil, err
	}

	meta.NodeCount = int64(len(nodes))
	meta.EdgeCount = int64(len(edges))
	_, err = e.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(e.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: metaPartition},
			"SK": &types.AttributeValueMemberS{Value: metaSKPrefix + graphID},
		},
		UpdateExpression: aws.String("SET NodeCount = :n, EdgeCount = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.NodeCount)},
			":e": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.EdgeCount)},
		},
	})
	if err != nil {
		return nil, e.translate(err)
	}
	summary := meta.summary()
	return &summary, nil
}

// ExecuteRawQuery implements ports.Engine.
func (e *Engine) ExecuteRawQuery(ctx context.Context, database, query string) (*graph.QueryResult, error) {
	return nil, apperrors.NewNotSupported("dynamodb engine has no raw query dialect")
}

// Ping implements ports.Engine.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(e.tableName),
	})
	if err != nil {
		return apperrors.NewStoreUnavailable("dynamodb", err)
	}
	return nil
}

// Close implements ports.Engine. The SDK client holds no pooled state
// worth draining.
func (e *Engine) Close(ctx context.Context) error {
	return nil
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// translate maps SDK failures onto the application error taxonomy.
func (e *Engine) translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	var conditional *types.ConditionalCheckFailedException
	if errors.As(err, &conditional) {
		return apperrors.NewConflict("graph id already exists")
	}
	var missing *types.ResourceNotFoundException
	if errors.As(err, &missing) {
		return apperrors.NewStoreUnavailable("dynamodb", err)
	}
	var throttled *types.ProvisionedThroughputExceededException
	if errors.As(err, &throttled) {
		return apperrors.NewStoreUnavailable("dynamodb", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewStoreUnavailable("dynamodb", err)
	}
	return apperrors.NewInternal("dynamodb request failed", err)
}
