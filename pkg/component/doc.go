/*
Package component defines the contracts the engine hosts: collectors that
periodically produce payloads, harvesters that derive artifacts from
previously ingested records, and handler components that only contribute
HTTP endpoints.

A component is declared through a Configuration whose Name doubles as its
record table and job name. Capability interfaces (Servable,
DependencyConsumer, UploadQueueConsumer, TableOwner) let the engine inject
exactly what each component needs at startup.
*/
package component
