// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a raw DynamoDB item.
type Item = map[string]types.AttributeValue

// Dynamo is an in-memory DynamoDB that understands the update and condition
// expressions used in this repo: SET/REMOVE clauses, AND/OR/parentheses,
// attribute_exists, attribute_not_exists and the comparison operators.
// All operations are serialized, so conditional writes behave atomically.
type Dynamo struct {
	mu      sync.Mutex
	schemas map[string][]string
	tables  map[string]map[string]Item

	// UpdateHook, when set, runs before every UpdateItem; a non-nil error is returned as is.
	UpdateHook func(in *dyn.UpdateItemInput) error

	PutCalls    int
	GetCalls    int
	UpdateCalls int
}

// NewDynamo returns an empty fake. Tables default to the orders key schema.
func NewDynamo() *Dynamo {
	return &Dynamo{
		schemas: map[string][]string{},
		tables:  map[string]map[string]Item{},
	}
}

// DefineTable sets the key attribute names of table.
func (d *Dynamo) DefineTable(table string, keyAttrs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schemas[table] = keyAttrs
}

func (d *Dynamo) schema(table string) []string {
	if s, ok := d.schemas[table]; ok {
		return s
	}
	return []string{"businessId", "createdAtOrderId"}
}

func (d *Dynamo) table(name string) map[string]Item {
	t, ok := d.tables[name]
	if !ok {
		t = map[string]Item{}
		d.tables[name] = t
	}
	return t
}

func (d *Dynamo) keyOf(table string, attrs Item) (string, error) {
	parts := make([]string, 0, 2)
	for _, name := range d.schema(table) {
		v, ok := attrs[name].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("missing key attribute %q", name)
		}
		parts = append(parts, v.Value)
	}
	return strings.Join(parts, "\x00"), nil
}

// Seed stores item directly, bypassing conditions.
func (d *Dynamo) Seed(table string, item Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, err := d.keyOf(table, item)
	if err != nil {
		panic(err)
	}
	d.table(table)[k] = copyItem(item)
}

// Item returns a copy of the stored item for key attributes, or nil.
func (d *Dynamo) Item(table string, key Item) Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, err := d.keyOf(table, key)
	if err != nil {
		return nil
	}
	item, ok := d.table(table)[k]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len returns the number of items in table.
func (d *Dynamo) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.table(table))
}

func (d *Dynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PutCalls++

	table := *in.TableName
	k, err := d.keyOf(table, in.Item)
	if err != nil {
		return nil, err
	}
	current := d.table(table)[k]
	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, current, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionFailed()
		}
	}
	d.table(table)[k] = copyItem(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.GetCalls++

	k, err := d.keyOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := d.table(*in.TableName)[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

// UpdateItem upserts like DynamoDB: a missing item starts from its key attributes.
func (d *Dynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.UpdateCalls++

	if d.UpdateHook != nil {
		if err := d.UpdateHook(in); err != nil {
			return nil, err
		}
	}

	table := *in.TableName
	k, err := d.keyOf(table, in.Key)
	if err != nil {
		return nil, err
	}
	current, exists := d.table(table)[k]
	if in.ConditionExpression != nil {
		var subject Item
		if exists {
			subject = current
		}
		ok, err := evalCondition(*in.ConditionExpression, subject, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionFailed()
		}
	}

	next := copyItem(in.Key)
	if exists {
		next = copyItem(current)
	}
	if in.UpdateExpression != nil {
		if err := applyUpdate(*in.UpdateExpression, next, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	d.table(table)[k] = next
	return &dyn.UpdateItemOutput{Attributes: copyItem(next)}, nil
}

func conditionFailed() error {
	msg := "The conditional request failed"
	return &types.ConditionalCheckFailedException{Message: &msg}
}

func copyItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if real, ok := names[name]; ok {
			return real
		}
	}
	return name
}

// applyUpdate supports "SET a = :x, b = :y REMOVE c, d" in either clause order.
func applyUpdate(expr string, item Item, names map[string]string, values Item) error {
	clauses := map[string][]string{}
	current := ""
	for _, field := range strings.Fields(expr) {
		switch strings.ToUpper(field) {
		case "SET", "REMOVE":
			current = strings.ToUpper(field)
			continue
		}
		if current == "" {
			return fmt.Errorf("unsupported update expression %q", expr)
		}
		clauses[current] = append(clauses[current], field)
	}

	for _, assignment := range strings.Split(strings.Join(clauses["SET"], " "), ",") {
		assignment = strings.TrimSpace(assignment)
		if assignment == "" {
			continue
		}
		lhs, rhs, ok := strings.Cut(assignment, "=")
		if !ok {
			return fmt.Errorf("unsupported SET action %q", assignment)
		}
		v, ok := values[strings.TrimSpace(rhs)]
		if !ok {
			return fmt.Errorf("missing expression value %s", strings.TrimSpace(rhs))
		}
		item[resolveName(strings.TrimSpace(lhs), names)] = v
	}
	for _, path := range strings.Split(strings.Join(clauses["REMOVE"], " "), ",") {
		path = strings.TrimSpace(path)
		if path != "" {
			delete(item, resolveName(path, names))
		}
	}
	return nil
}

// --- condition evaluation ---

type condParser struct {
	tokens []string
	pos    int
	item   Item
	names  map[string]string
	values Item
}

func evalCondition(expr string, item Item, names map[string]string, values Item) (bool, error) {
	p := &condParser{tokens: tokenize(expr), item: item, names: names, values: values}
	ok, err := p.or()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.tokens) {
		return false, fmt.Errorf("unexpected token %q in %q", p.tokens[p.pos], expr)
	}
	return ok, nil
}

func tokenize(expr string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		case c == '(' || c == ')' || c == ',':
			flush()
			tokens = append(tokens, string(c))
		case c == '<' || c == '>' || c == '=':
			flush()
			if i+1 < len(expr) && (expr[i+1] == '=' || (c == '<' && expr[i+1] == '>')) {
				tokens = append(tokens, expr[i:i+2])
				i++
			} else {
				tokens = append(tokens, string(c))
			}
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}

func (p *condParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *condParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *condParser) or() (bool, error) {
	left, err := p.and()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		right, err := p.and()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *condParser) and() (bool, error) {
	left, err := p.factor()
	if err != nil {
		return false, err
	}
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		right, err := p.factor()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *condParser) factor() (bool, error) {
	tok := p.next()
	switch {
	case tok == "(":
		v, err := p.or()
		if err != nil {
			return false, err
		}
		if p.next() != ")" {
			return false, errors.New("expected )")
		}
		return v, nil
	case strings.EqualFold(tok, "NOT"):
		v, err := p.factor()
		return !v, err
	case tok == "attribute_exists" || tok == "attribute_not_exists":
		if p.next() != "(" {
			return false, fmt.Errorf("expected ( after %s", tok)
		}
		path := resolveName(p.next(), p.names)
		if p.next() != ")" {
			return false, fmt.Errorf("expected ) after %s", tok)
		}
		_, present := p.item[path]
		if tok == "attribute_exists" {
			return present, nil
		}
		return !present, nil
	}

	op := p.next()
	rightTok := p.next()
	left, lok := p.operand(tok)
	right, rok := p.operand(rightTok)
	if !lok || !rok {
		// comparisons against missing attributes are false, as in DynamoDB
		return op == "<>", nil
	}
	cmp, err := compare(left, right)
	if err != nil {
		return false, err
	}
	switch op {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func (p *condParser) operand(tok string) (types.AttributeValue, bool) {
	if strings.HasPrefix(tok, ":") {
		v, ok := p.values[tok]
		return v, ok
	}
	v, ok := p.item[resolveName(tok, p.names)]
	return v, ok
}

func compare(a, b types.AttributeValue) (int, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, errors.New("type mismatch in comparison")
		}
		return strings.Compare(av.Value, bv.Value), nil
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, errors.New("type mismatch in comparison")
		}
		x, err := strconv.ParseFloat(av.Value, 64)
		if err != nil {
			return 0, err
		}
		y, err := strconv.ParseFloat(bv.Value, 64)
		if err != nil {
			return 0, err
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported comparison type %T", a)
}
