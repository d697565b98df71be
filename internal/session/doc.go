/*
Package session hosts micro-apps.

A Session owns one event loop and everything the bridge needs for one app:

	surface  (goja) --postMessage--> router --> capability handlers
	    ^                              |              |
	    +------- resolve/reject -------+      broker, storage, native

The lifecycle machine gates the router: messages posted while content is
loading are buffered and replayed once the page is ready, and results of an
earlier load are discarded.

A Manager keeps sessions by ULID and launches them from catalog entries.
*/
package session
