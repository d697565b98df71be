/*
Package tracing provides lightweight request tracing.

Spans are logged through zap once finished; nothing is exported. Traces
propagate through the X-Trace-ID and X-Span-ID headers: the Gin middleware
continues an incoming trace, and Propagate forwards it on outbound resty
requests (catalog calls, content fetches).

	tracer := tracing.New("minihost", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	client.Resty.OnBeforeRequest(tracing.Propagate)

	span, ctx := tracer.StartSpan(ctx, "content.load")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
