/*
Package native performs the host side effects behind bridge capabilities.

Interactive UI (alerts, confirmations, the QR scanner) is delegated to a host
shell connected over WebSocket at /shell. Prompts go to the most recently
connected shell:

	-> {"type":"prompt","id":"…","kind":"confirm","sessionId":"…","appId":"…","title":"…","message":"…"}
	<- {"type":"answer","id":"…","outcome":"cancel"}

A prompt whose request times out is withdrawn with {"type":"dismiss","id":"…"}.

File transfers write under the downloads directory, one folder per storage
namespace.
*/
package native
