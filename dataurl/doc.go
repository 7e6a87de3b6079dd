/*
Package dataurl replaces small raster images referenced from CSS
background declarations with base64 "data:" URIs.

Processing of a stylesheet goes through the following steps:

	refs := dataurl.Scan(text)         // locate url(...) bodies
	data, err := fetcher.Fetch(ctx, u) // for every reference
	outcome := policy.Admit(...)       // size and availability checks
	uri := dataurl.Encode(data, u)     // data:<mime>;base64,<payload>
	out, _ := dataurl.Apply(text, ed)  // splice, rightmost edit first

Inliner wires these steps together:

	in := dataurl.NewInliner(dataurl.Options{SizeLimit: 32 * 1024}, log)
	out, err := in.Inline(ctx, text, enabled, supported, fetcher)

All offsets are byte offsets into the original text. Spans reported by a
single scan never overlap and are ordered by start, which is what allows
Apply to rewrite the text in one pass from right to left without any
offset adjustments.

Failure to load or admit a single image never fails the whole call, the
reference is simply left as it was.
*/
package dataurl
