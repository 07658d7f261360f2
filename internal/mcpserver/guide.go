package mcpserver

// Guide describes how the focus tools behave. It is served as a resource so
// clients can read it before driving a canvas.
const Guide = `# Canvas focus

A canvas is a JSON board of nodes. Exactly one canvas is active at a time
(activate_canvas). When exactly one node is selected (select_nodes) it is
shown on the focus surface:

- **File nodes** open the referenced vault file.
- **Text nodes** get a scratch document under the scratch folder
  (default ` + "`canvas-focus-temp/`" + `). Edits to the node and edits to the
  scratch document are synced both ways until the selection changes.

Selecting several nodes, or none, leaves the surface as it is.

## Promotion

promote_node turns the focused text node into a permanent note:

1. The note name is the first Markdown heading of the node text. Without a
   heading, ` + "`name`" + ` is used.
2. If a note with that name exists, ` + "`name`" + ` is used instead. When no
   usable name is available the call fails and nothing changes.
3. The note is written, the text node is replaced by a file node with the same
   position, size and color, and the scratch document is deleted.

Names are cleaned of characters that are not allowed in file names and
capped at 200 characters; ` + "`.md`" + ` is added automatically.

## Notes

read_note and search_notes give read-only access to the vault index. The
scratch folder and the state folder are never indexed.
`
