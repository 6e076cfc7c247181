package ddb

import (
	"clientreg/internal/backends/memory"
	"clientreg/internal/types"
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ClientStore keeps one item per client under PK=CLIENT#<cnpj>, SK=PROFILE.
// Inserts are conditional on the key not existing, which gives CNPJ uniqueness.
type ClientStore struct {
	table string
	cli   dynamoAPI
}

type clientItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	types.Client
}

func NewClientStore(table string, cli dynamoAPI) *ClientStore {
	return &ClientStore{table: table, cli: cli}
}

// Migrate creates the table if it doesn't exist.
func (s *ClientStore) Migrate(ctx context.Context) error {
	return createTableIfNotExists(ctx, s.cli, s.table)
}

func (s *ClientStore) key(cnpj string) map[string]ddbTypes.AttributeValue {
	return map[string]ddbTypes.AttributeValue{
		"PK": &ddbTypes.AttributeValueMemberS{Value: pkClient(cnpj)},
		"SK": &ddbTypes.AttributeValueMemberS{Value: skProfile()},
	}
}

func (s *ClientStore) load(ctx context.Context, cnpj string) (*types.Client, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            s.key(cnpj),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, types.ErrNotFound
	}
	var item clientItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &item.Client, nil
}

func (s *ClientStore) Exists(ctx context.Context, cnpj string) (bool, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            &s.table,
		Key:                  s.key(cnpj),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return false, err
	}
	return out.Item != nil, nil
}

func (s *ClientStore) Insert(ctx context.Context, client types.Client) error {
	item, err := attributevalue.MarshalMap(clientItem{
		PK:     pkClient(client.CNPJ),
		SK:     skProfile(),
		Client: client,
	})
	if err != nil {
		return err
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var cc *ddbTypes.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return types.ErrConflict
		}
		return err
	}
	return nil
}

// scan walks every client item in the table.
func (s *ClientStore) scan(ctx context.Context, fn func(types.Client)) error {
	p := dynamodb.NewScanPaginator(s.cli, &dynamodb.ScanInput{
		TableName:        &s.table,
		ConsistentRead:   aws.Bool(true),
		FilterExpression: aws.String("begins_with(PK, :pk) AND SK = :sk"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: SClient + "#"},
			":sk": &ddbTypes.AttributeValueMemberS{Value: skProfile()},
		},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range page.Items {
			var item clientItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return err
			}
			if item.CNPJ == "" {
				cnpj, err := parseCNPJ(item.PK)
				if err != nil {
					return err
				}
				item.CNPJ = cnpj
			}
			fn(item.Client)
		}
	}
	return nil
}

func (s *ClientStore) List(ctx context.Context) ([]types.ClientView, error) {
	views := make([]types.ClientView, 0)
	if err := s.scan(ctx, func(c types.Client) { views = append(views, c.View()) }); err != nil {
		return nil, err
	}
	memory.SortByNome(views)
	return views, nil
}

func (s *ClientStore) Get(ctx context.Context, cnpj string) (types.ClientView, error) {
	c, err := s.load(ctx, cnpj)
	if err != nil {
		return types.ClientView{}, err
	}
	return c.View(), nil
}

func (s *ClientStore) SecretFor(ctx context.Context, cnpj string) (string, error) {
	c, err := s.load(ctx, cnpj)
	if err != nil {
		return "", err
	}
	return c.SecretEncrypted, nil
}

func (s *ClientStore) Delete(ctx context.Context, cnpj string) (bool, error) {
	out, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    &s.table,
		Key:          s.key(cnpj),
		ReturnValues: ddbTypes.ReturnValueAllOld,
	})
	if err != nil {
		return false, err
	}
	return len(out.Attributes) > 0, nil
}

func (s *ClientStore) Secrets(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	if err := s.scan(ctx, func(c types.Client) { out[c.SecretEncrypted] = c.Nome }); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ClientStore) ClearAll(ctx context.Context) error {
	// delete all items in the table
	_, err := s.cli.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: &s.table,
	})
	if err != nil {
		return err
	}
	// wait until the table is deleted
	err = dynamodb.NewTableNotExistsWaiter(s.cli).Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	}, 30*time.Second)
	if err != nil {
		return err
	}
	// Recreate the table
	return createTableIfNotExists(ctx, s.cli, s.table)
}
