package conn

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/pglog"
	"github.com/pg-sharding/pglink/pkg/pgtype"
	"github.com/pg-sharding/pglink/pkg/proto"
)

// loadResultTypes resolves any result column oid the registry does not
// know yet. Failures are logged and tolerated: the unresolved column
// falls back to raw text decoding.
func (c *Conn) loadResultTypes(ctx context.Context, fields []proto.FieldDescription) {
	for _, fd := range fields {
		if _, ok := c.typeMap.TypeForOID(fd.DataTypeOID); ok {
			continue
		}
		if _, err := c.LoadType(ctx, fd.DataTypeOID); err != nil {
			pglog.Zero.Warn().
				Uint32("oid", fd.DataTypeOID).
				Err(err).
				Msg("catalog lookup failed, column decodes as text")
		}
	}
}

// LoadType resolves oid through pg_catalog.pg_type and registers the
// result in the connection's registry. Concurrent callers for the same
// oid share one catalog round trip; once registered, the oid is never
// looked up again on this connection. Domains inherit their base type's
// codec, everything else without a known binary representation decodes
// as text.
func (c *Conn) LoadType(ctx context.Context, oid uint32) (*pgtype.Type, error) {
	if t, ok := c.typeMap.TypeForOID(oid); ok {
		return t, nil
	}

	v, err, _ := c.typeLoads.Do(strconv.FormatUint(uint64(oid), 10), func() (any, error) {
		return c.lookupType(ctx, oid)
	})
	if err != nil {
		return nil, err
	}
	t := v.(*pgtype.Type)
	c.mu.Lock()
	c.typeMap.RegisterType(t)
	c.mu.Unlock()
	return t, nil
}

func (c *Conn) lookupType(ctx context.Context, oid uint32) (*pgtype.Type, error) {
	// Simple protocol on purpose: the lookup itself must not recurse
	// into the prepared statement machinery.
	results, err := c.Exec(ctx, fmt.Sprintf(
		"SELECT typname, typtype, typbasetype FROM pg_catalog.pg_type WHERE oid = %d", oid))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0].RowCount() == 0 {
		return nil, &pgerror.ConversionError{
			OID: oid,
			Err: fmt.Errorf("no pg_type row"),
		}
	}

	values, err := results[0].Values(0)
	if err != nil {
		return nil, err
	}
	typname, _ := values[0].(string)
	typtype, _ := values[1].(string)

	if typtype == "d" {
		var basetype uint32
		switch v := values[2].(type) {
		case uint32:
			basetype = v
		case string:
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, &pgerror.ConversionError{OID: oid, Err: err}
			}
			basetype = uint32(n)
		}
		base, err := c.LoadType(ctx, basetype)
		if err != nil {
			return nil, err
		}
		return &pgtype.Type{OID: oid, Name: typname, Codec: base.Codec}, nil
	}

	return &pgtype.Type{
		OID:   oid,
		Name:  typname,
		Codec: pgtype.TextFormatOnlyCodec{Codec: pgtype.TextCodec{}},
	}, nil
}
