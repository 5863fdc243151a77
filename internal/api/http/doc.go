// Package http exposes editing sessions over a JSON API.
//
// Routes (registered by Register):
//
//	POST   /sessions                          create a session from the starter
//	GET    /sessions                          list sessions
//	GET    /sessions/:id                      session detail
//	DELETE /sessions/:id                      close a session
//	GET    /sessions/:id/fragments            all fragments
//	GET    /sessions/:id/fragments/:kind      one fragment (markup|style|script or html|css|js)
//	PUT    /sessions/:id/fragments/:kind      replace one fragment, ?run=true to run after
//	GET    /sessions/:id/libraries            library URLs in order
//	POST   /sessions/:id/libraries            append a library URL
//	POST   /sessions/:id/run                  hard-reload the preview
//	GET    /sessions/:id/preview              composed preview document
//	GET    /sessions/:id/console              console entries, ?since=<seq>
//	POST   /sessions/:id/relay                message posted by a preview frame
//	GET    /sessions/:id/export               standalone download, ?compress=gzip|zstd
//
// Errors are JSON bodies of the form {"error": "..."}.
package http
