/*
Package uploads implements the async ingestion path for large ZIP-packaged
assets. The tileset manager's upload endpoint parks the archive in a temp
file and inserts a pending record; the processor running on the uploads
queue extracts every entry into the blob store under a unique base path and
settles the record as completed or failed. Failed records are preserved
with their error message.
*/
package uploads
