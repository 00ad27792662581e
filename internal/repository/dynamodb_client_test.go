package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"gemini-chat/internal/domain"
)

type fakeDynamo struct {
	putErr       error
	queryOut     *dynamodb.QueryOutput
	queryPages   []*dynamodb.QueryOutput
	queryErr     error
	lastPutInput *dynamodb.PutItemInput
	lastQueryIn  *dynamodb.QueryInput
	queryInputs  []*dynamodb.QueryInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	f.queryInputs = append(f.queryInputs, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryPages) > 0 {
		return f.queryPages[len(f.queryInputs)-1], nil
	}
	return f.queryOut, nil
}

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func sAttr(item map[string]types.AttributeValue, key string) string {
	return item[key].(*types.AttributeValueMemberS).Value
}

func TestSaveExchange_FillsKeys(t *testing.T) {
	prev := newUUID
	newUUID = func() string { return "ex-1" }
	t.Cleanup(func() { newUUID = prev })

	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	err := c.SaveExchange(context.Background(), domain.Exchange{
		Message:     "2+2?",
		Attachments: []string{"image/png"},
		Reply:       "4",
		Model:       "gemini-2.0-flash",
		Status:      "succeeded",
	})
	require.NoError(t, err)

	item := db.lastPutInput.Item
	require.Equal(t, "test-table", *db.lastPutInput.TableName)
	require.Equal(t, "DAY#2026-10-18", sAttr(item, "PK"))
	require.Equal(t, "EXCH#2026-10-18T09:30:00Z#ex-1", sAttr(item, "SK"))
	require.Equal(t, "ex-1", sAttr(item, "exchangeId"))
	require.Equal(t, "4", sAttr(item, "reply"))
	require.Equal(t, "gemini-2.0-flash", sAttr(item, "model"))
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *db.lastPutInput.ConditionExpression)

	attachments := item["attachments"].(*types.AttributeValueMemberL).Value
	require.Len(t, attachments, 1)

	ttl := item["ttl"].(*types.AttributeValueMemberN).Value
	require.Equal(t, "1794907800", ttl)
}

func TestSaveExchange_NoAttachmentsOmitsList(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.SaveExchange(context.Background(), domain.Exchange{Message: "hi"}))
	_, ok := db.lastPutInput.Item["attachments"]
	require.False(t, ok)
}

func TestSaveExchange_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	c := mustNewClient(t, db)
	err := c.SaveExchange(context.Background(), domain.Exchange{Message: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveExchange")
}

func TestListExchanges_HappyPath(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		exchangeItem(domain.Exchange{
			PK: "DAY#2026-10-18", SK: "EXCH#2026-10-18T10:00:00Z#b", ExchangeID: "b",
			Message: "newer", Reply: "r2", Status: "succeeded", TTL: 42,
			Attachments: []string{"audio/webm"},
		}),
		exchangeItem(domain.Exchange{
			PK: "DAY#2026-10-18", SK: "EXCH#2026-10-18T09:00:00Z#a", ExchangeID: "a",
			Message: "older", Reply: "boom", Status: "failed",
		}),
	}}}
	c := mustNewClient(t, db)

	out, err := c.ListExchanges(context.Background(), fixedNow, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "newer", out[0].Message)
	require.Equal(t, []string{"audio/webm"}, out[0].Attachments)
	require.Equal(t, int64(42), out[0].TTL)
	require.Equal(t, "failed", out[1].Status)

	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *db.lastQueryIn.KeyConditionExpression)
	require.Equal(t, "DAY#2026-10-18", db.lastQueryIn.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(10), *db.lastQueryIn.Limit)
}

func TestListExchanges_NoLimit(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewClient(t, db)
	out, err := c.ListExchanges(context.Background(), fixedNow, 0)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Nil(t, db.lastQueryIn.Limit)
}

func exchangePage(next string, ids ...string) *dynamodb.QueryOutput {
	out := &dynamodb.QueryOutput{}
	for _, id := range ids {
		out.Items = append(out.Items, exchangeItem(domain.Exchange{
			PK: "DAY#2026-10-18", SK: "EXCH#2026-10-18T09:00:00Z#" + id, ExchangeID: id,
			Message: "m-" + id, Status: "succeeded",
		}))
	}
	if next != "" {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "DAY#2026-10-18"},
			"SK": &types.AttributeValueMemberS{Value: next},
		}
	}
	return out
}

func TestListExchanges_NoLimitFollowsPages(t *testing.T) {
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{
		exchangePage("EXCH#2026-10-18T09:00:00Z#b", "a", "b"),
		exchangePage("", "c"),
	}}
	c := mustNewClient(t, db)

	out, err := c.ListExchanges(context.Background(), fixedNow, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "c", out[2].ExchangeID)
	require.Len(t, db.queryInputs, 2)
	require.Nil(t, db.queryInputs[0].ExclusiveStartKey)
	require.Equal(t, "EXCH#2026-10-18T09:00:00Z#b", db.queryInputs[1].ExclusiveStartKey["SK"].(*types.AttributeValueMemberS).Value)
}

func TestListExchanges_LimitStopsPaging(t *testing.T) {
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{
		exchangePage("EXCH#2026-10-18T09:00:00Z#b", "a", "b"),
		exchangePage("EXCH#2026-10-18T09:00:00Z#d", "c", "d"),
		exchangePage("", "e"),
	}}
	c := mustNewClient(t, db)

	out, err := c.ListExchanges(context.Background(), fixedNow, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "c", out[2].ExchangeID)
	require.Len(t, db.queryInputs, 2)
}

func TestListExchanges_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	c := mustNewClient(t, db)
	_, err := c.ListExchanges(context.Background(), fixedNow, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ListExchanges")
}

func TestListExchanges_MalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "DAY#2026-10-18"},
		"SK": &types.AttributeValueMemberS{Value: "EXCH#ts"},
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	c := mustNewClient(t, db)
	_, err := c.ListExchanges(context.Background(), fixedNow, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exchangeId")
}

func TestDayPK_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2026, 10, 19, 2, 0, 0, 0, loc)
	require.Equal(t, "DAY#2026-10-18", dayPK(ts))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}
