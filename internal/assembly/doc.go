// Package assembly turns ranked chunks into page-level answers.
//
// An Assembler overfetches hits from a HitSource, groups them by page URL
// in rank order and hands each group to the Strategy selected by the page's
// content type:
//
//   - default (markdown, HTML, plain text): each hit is widened to its parent
//     section, nearby siblings and first children, joined by blank lines
//   - structured (source code, JSON, YAML): each hit is shown under its full
//     ancestor chain plus its direct children, joined by newlines
//
// A page's score is the best score among its hits. Content always reads in
// page order regardless of hit order.
package assembly
