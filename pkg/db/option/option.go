package option

import "gorm.io/gorm"

type Options struct {
	Limit  int
	Scopes []func(*gorm.DB) *gorm.DB
}

type QueryOption func(*Options)

func WithLimit(limit int) QueryOption {
	return func(o *Options) { o.Limit = limit }
}

// WithScope applies an arbitrary gorm scope, e.g. an ordering or a cursor
// window.
func WithScope(fn func(*gorm.DB) *gorm.DB) QueryOption {
	return func(o *Options) { o.Scopes = append(o.Scopes, fn) }
}

func Apply(tx *gorm.DB, opts ...QueryOption) *gorm.DB {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	if o.Limit > 0 {
		tx = tx.Limit(o.Limit)
	}

	for _, scope := range o.Scopes {
		tx = scope(tx)
	}

	return tx
}
