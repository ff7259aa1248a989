// Package redis wraps go-redis with structured logging, defaults and a
// component lifecycle, and offers a generic JSON store on top of it.
//
//	comp := redis.NewComponent(redis.Config{Enabled: true, Addr: "localhost:6379"}, log)
//	if err := comp.Start(ctx); err != nil { ... }
//	store := redis.NewJSONStore[transcription.Result](comp.Client(), "whisperd:result")
package redis
