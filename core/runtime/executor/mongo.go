package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/infrastructure/connectors"
)

// NewMongoExecutor creates an executor for a MongoDB datasource
func NewMongoExecutor(conn *connectors.MongoDBConnector) *Executor {
	return newExecutor(conn, &mongoBackend{conn: conn})
}

type mongoBackend struct {
	conn *connectors.MongoDBConnector
}

type mongoTx struct {
	session *mongo.Session
}

func (t *mongoTx) Commit(ctx context.Context) error {
	defer t.session.EndSession(context.WithoutCancel(ctx))
	return t.session.CommitTransaction(ctx)
}

func (t *mongoTx) Rollback(ctx context.Context) error {
	defer t.session.EndSession(context.WithoutCancel(ctx))
	return t.session.AbortTransaction(ctx)
}

func (b *mongoBackend) begin(_ context.Context, isolationLevel string) (txHandle, error) {
	if isolationLevel != "" {
		return nil, domain.NewConnectorError(domain.ConnectorUnsupported,
			fmt.Errorf("isolation level %s is not supported by MongoDB", isolationLevel)).
			WithUserFacing(transactionError(fmt.Sprintf("Invalid isolation level `%s`", isolationLevel)))
	}
	session, err := b.conn.Client().StartSession()
	if err != nil {
		return nil, domain.NewCoreError(domain.CoreTransactionError, "failed to start session", err)
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(context.Background())
		return nil, domain.NewCoreError(domain.CoreTransactionError, "failed to start transaction", err)
	}
	return &mongoTx{session: session}, nil
}

func (b *mongoBackend) run(ctx context.Context, op *operation, tx txHandle) (any, error) {
	if op.action.IsRaw() {
		return nil, validationError(op.path, "Raw SQL queries are not supported on MongoDB")
	}
	if tx != nil {
		ctx = mongo.NewSessionContext(ctx, tx.(*mongoTx).session)
	}
	result, err := b.dispatch(ctx, op)
	if err != nil {
		return nil, queryFailed(op.model, err)
	}
	return result, nil
}

func (b *mongoBackend) dispatch(ctx context.Context, op *operation) (any, error) {
	coll := b.conn.Database().Collection(op.model.Table)
	filter := mongoFilter(op.where)

	switch op.action {
	case domain.ActionFindUnique, domain.ActionFindUniqueOrThrow, domain.ActionFindFirst, domain.ActionFindFirstOrThrow:
		take := int64(1)
		if op.take != nil && *op.take < 0 {
			take = -1
		}
		records, err := b.find(ctx, coll, op, filter, &take)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			if op.action == domain.ActionFindUniqueOrThrow || op.action == domain.ActionFindFirstOrThrow {
				return nil, notFoundOrThrow(op.model.Model.Name)
			}
			return nil, nil
		}
		return records[0], nil

	case domain.ActionFindMany:
		return b.find(ctx, coll, op, filter, op.take)

	case domain.ActionCreateOne:
		doc, err := mongoDocument(op, op.rows[0])
		if err != nil {
			return nil, err
		}
		res, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return nil, err
		}
		var created bson.M
		err = coll.FindOne(ctx, bson.D{{Key: "_id", Value: res.InsertedID}},
			options.FindOne().SetProjection(projection(op.selection))).Decode(&created)
		if err != nil {
			return nil, err
		}
		return mongoRecord(op, created), nil

	case domain.ActionCreateMany:
		docs := make([]any, 0, len(op.rows))
		for _, row := range op.rows {
			doc, err := mongoDocument(op, row)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		_, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(!op.skipDuplicates))
		if err != nil {
			if skipped, ok := duplicatesOnly(err); ok && op.skipDuplicates {
				return countResult(int64(len(docs) - skipped)), nil
			}
			return nil, err
		}
		return countResult(int64(len(docs))), nil

	case domain.ActionUpdateOne:
		var updated bson.M
		var err error
		if pipeline := mongoUpdate(withUpdatedAt(op)); len(pipeline) > 0 {
			err = coll.FindOneAndUpdate(ctx, filter, pipeline, options.FindOneAndUpdate().
				SetReturnDocument(options.After).
				SetProjection(projection(op.selection))).Decode(&updated)
		} else {
			err = coll.FindOne(ctx, filter, options.FindOne().SetProjection(projection(op.selection))).Decode(&updated)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, recordNotFound(op.model.Model.Name, "Record to update not found.")
		}
		if err != nil {
			return nil, err
		}
		return mongoRecord(op, updated), nil

	case domain.ActionUpdateMany:
		pipeline := mongoUpdate(withUpdatedAt(op))
		if len(pipeline) == 0 {
			return countResult(0), nil
		}
		res, err := coll.UpdateMany(ctx, filter, pipeline)
		if err != nil {
			return nil, err
		}
		return countResult(res.MatchedCount), nil

	case domain.ActionDeleteOne:
		var deleted bson.M
		err := coll.FindOneAndDelete(ctx, filter, options.FindOneAndDelete().
			SetProjection(projection(op.selection))).Decode(&deleted)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, recordNotFound(op.model.Model.Name, "Record to delete does not exist.")
		}
		if err != nil {
			return nil, err
		}
		return mongoRecord(op, deleted), nil

	case domain.ActionDeleteMany:
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return nil, err
		}
		return countResult(res.DeletedCount), nil

	case domain.ActionAggregate:
		return b.aggregate(ctx, coll, op, filter)
	}
	return nil, domain.NewCoreError(domain.CoreQueryError, fmt.Sprintf("unsupported action %s", op.action), nil)
}

func (b *mongoBackend) find(ctx context.Context, coll *mongo.Collection, op *operation, filter bson.D, take *int64) ([]*record, error) {
	order := op.orderBy
	reverse := take != nil && *take < 0
	if reverse {
		order = invertOrder(op, order)
		n := -*take
		take = &n
	}

	opts := options.Find().SetProjection(projection(op.selection))
	if len(order) > 0 {
		opts.SetSort(mongoSort(order))
	}
	if op.skip > 0 {
		opts.SetSkip(op.skip)
	}
	if take != nil {
		opts.SetLimit(*take)
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]*record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, mongoRecord(op, doc))
	}
	if reverse {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	return records, nil
}

func (b *mongoBackend) aggregate(ctx context.Context, coll *mongo.Collection, op *operation, filter bson.D) (any, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: filter}}}
	if len(op.orderBy) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: mongoSort(op.orderBy)}})
	}
	if op.skip > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: op.skip}})
	}
	if op.take != nil {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: *op.take}})
	}

	agg := op.aggregate
	var columns []aggregateColumn
	group := bson.D{{Key: "_id", Value: nil}}
	add := func(c aggregateColumn, expr any) {
		group = append(group, bson.E{Key: fmt.Sprintf("a%d", len(columns)), Value: expr})
		columns = append(columns, c)
	}
	for _, name := range agg.count {
		f, _ := op.model.Field(name)
		c := aggregateColumn{group: "_count", name: name, field: f}
		if f == nil {
			add(c, bson.D{{Key: "$sum", Value: 1}})
			continue
		}
		add(c, bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$gt", Value: bson.A{"$" + f.ColumnName(), nil}}}, 1, 0,
		}}}}})
	}
	operators := []struct {
		group  string
		op     string
		fields []*domain.Field
	}{{"_min", "$min", agg.min}, {"_max", "$max", agg.max}, {"_avg", "$avg", agg.avg}, {"_sum", "$sum", agg.sum}}
	for _, o := range operators {
		for _, f := range o.fields {
			add(aggregateColumn{group: o.group, name: f.Name, field: f}, bson.D{{Key: o.op, Value: "$" + f.ColumnName()}})
		}
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: group}})

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	row := bson.M{}
	if len(docs) > 0 {
		row = docs[0]
	}

	result := newRecord(len(operators) + 1)
	for i, c := range columns {
		value := bsonValueToAny(row[fmt.Sprintf("a%d", i)])
		if value == nil && c.group == "_sum" {
			value = int64(0)
		}
		g, ok := result.get(c.group)
		if !ok {
			g = newRecord(1)
			result.set(c.group, g)
		}
		g.(*record).set(c.name, aggregateValue(op, c, value))
	}
	return result, nil
}

func mongoRecord(op *operation, doc bson.M) *record {
	r := newRecord(len(op.selection))
	for _, f := range op.selection {
		r.set(f.Name, outputValue(op.qs, f, bsonValueToAny(doc[f.ColumnName()])))
	}
	return r
}

func projection(fields []*domain.Field) bson.D {
	p := make(bson.D, 0, len(fields)+1)
	hasID := false
	for _, f := range fields {
		p = append(p, bson.E{Key: f.ColumnName(), Value: 1})
		hasID = hasID || f.ColumnName() == "_id"
	}
	if !hasID {
		p = append(p, bson.E{Key: "_id", Value: 0})
	}
	return p
}

func mongoSort(order []orderTerm) bson.D {
	sort := make(bson.D, 0, len(order))
	for _, t := range order {
		dir := 1
		if t.desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: t.field.ColumnName(), Value: dir})
	}
	return sort
}

// mongoDocument builds the document of a new record
func mongoDocument(op *operation, data []assignment) (bson.D, error) {
	row, err := withDefaults(op, data)
	if err != nil {
		return nil, err
	}
	doc := make(bson.D, 0, len(row)+1)
	for _, f := range op.model.ScalarFields {
		if _, ok := assigned(row, f.Name); ok {
			continue
		}
		if f.Default != nil && f.Default.Function == "auto" {
			doc = append(doc, bson.E{Key: f.ColumnName(), Value: bson.NewObjectID()})
		}
	}
	for _, a := range row {
		doc = append(doc, bson.E{Key: a.field.ColumnName(), Value: mongoValue(a.field, a.value)})
	}
	return doc, nil
}

// mongoUpdate renders updates as an update pipeline
func mongoUpdate(updates []update) mongo.Pipeline {
	if len(updates) == 0 {
		return nil
	}
	set := make(bson.D, 0, len(updates))
	for _, u := range updates {
		key := u.field.ColumnName()
		value := mongoValue(u.field, u.value)
		var expr any
		switch u.op {
		case updateIncrement:
			expr = bson.D{{Key: "$add", Value: bson.A{"$" + key, value}}}
		case updateDecrement:
			expr = bson.D{{Key: "$subtract", Value: bson.A{"$" + key, value}}}
		case updateMultiply:
			expr = bson.D{{Key: "$multiply", Value: bson.A{"$" + key, value}}}
		case updateDivide:
			expr = bson.D{{Key: "$divide", Value: bson.A{"$" + key, value}}}
		default:
			expr = bson.D{{Key: "$literal", Value: value}}
		}
		set = append(set, bson.E{Key: key, Value: expr})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func mongoFilter(f filter) bson.D {
	switch f := f.(type) {
	case nil:
		return bson.D{}
	case andFilter:
		if len(f) == 0 {
			return bson.D{}
		}
		return bson.D{{Key: "$and", Value: mongoFilters(f)}}
	case orFilter:
		if len(f) == 0 {
			return bson.D{{Key: "$nor", Value: bson.A{bson.D{}}}}
		}
		return bson.D{{Key: "$or", Value: mongoFilters(f)}}
	case notFilter:
		return bson.D{{Key: "$nor", Value: bson.A{mongoFilter(andFilter(f))}}}
	case *fieldFilter:
		return bson.D{{Key: f.field.ColumnName(), Value: fieldCondition(f)}}
	}
	return bson.D{}
}

func mongoFilters(children []filter) bson.A {
	out := make(bson.A, len(children))
	for i, c := range children {
		out[i] = mongoFilter(c)
	}
	return out
}

var mongoOperators = map[filterOp]string{
	opEquals: "$eq",
	opNot:    "$ne",
	opLt:     "$lt",
	opLte:    "$lte",
	opGt:     "$gt",
	opGte:    "$gte",
	opIn:     "$in",
	opNotIn:  "$nin",
}

func fieldCondition(f *fieldFilter) bson.D {
	if f.op.isText() || (f.insensitive && (f.op == opEquals || f.op == opNot) && f.value != nil) {
		pattern := regexp.QuoteMeta(asString(f.value))
		switch f.op {
		case opStartsWith:
			pattern = "^" + pattern
		case opEndsWith:
			pattern = pattern + "$"
		case opEquals, opNot:
			pattern = "^" + pattern + "$"
		}
		flags := ""
		if f.insensitive {
			flags = "i"
		}
		regex := bson.Regex{Pattern: pattern, Options: flags}
		if f.op == opNot {
			return bson.D{{Key: "$not", Value: regex}}
		}
		return bson.D{{Key: "$regex", Value: regex.Pattern}, {Key: "$options", Value: regex.Options}}
	}

	if values, ok := f.value.([]any); ok {
		converted := make(bson.A, len(values))
		for i, v := range values {
			converted[i] = mongoValue(f.field, v)
		}
		return bson.D{{Key: mongoOperators[f.op], Value: converted}}
	}
	return bson.D{{Key: mongoOperators[f.op], Value: mongoValue(f.field, f.value)}}
}

// mongoValue converts a coerced input into its BSON representation
func mongoValue(f *domain.Field, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch {
	case isObjectID(f):
		if oid, err := bson.ObjectIDFromHex(s); err == nil {
			return oid
		}
	case domain.ScalarType(f.Type) == domain.ScalarDecimal:
		if d, err := bson.ParseDecimal128(s); err == nil {
			return d
		}
	case domain.ScalarType(f.Type) == domain.ScalarJSON:
		var doc any
		if err := json.Unmarshal([]byte(s), &doc); err == nil {
			return toBSONValue(doc)
		}
	}
	return v
}

func isObjectID(f *domain.Field) bool {
	for _, a := range f.Attributes {
		if a.Name == "db.ObjectId" {
			return true
		}
	}
	return false
}

// duplicatesOnly reports whether err consists of duplicate key errors only,
// and how many documents were skipped.
func duplicatesOnly(err error) (int, bool) {
	var bulk mongo.BulkWriteException
	if !errors.As(err, &bulk) || bulk.WriteConcernError != nil {
		return 0, false
	}
	for _, we := range bulk.WriteErrors {
		if we.Code != 11000 {
			return 0, false
		}
	}
	return len(bulk.WriteErrors), true
}

func toBSON(m map[string]any) bson.M {
	if m == nil {
		return nil
	}
	out := make(bson.M, len(m))
	for k, v := range m {
		out[k] = toBSONValue(v)
	}
	return out
}

func toBSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return toBSON(val)
	case []any:
		arr := make(bson.A, len(val))
		for i, item := range val {
			arr[i] = toBSONValue(item)
		}
		return arr
	default:
		return v
	}
}

func bsonValueToAny(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = bsonValueToAny(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, elem := range val {
			out[elem.Key] = bsonValueToAny(elem.Value)
		}
		return out
	case bson.A:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = bsonValueToAny(item)
		}
		return arr
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time()
	case bson.Decimal128:
		return val.String()
	case bson.Binary:
		return val.Data
	default:
		return v
	}
}
