// Package generation runs one content generation request at a time, from
// the captured draft through the generation service to library persistence
// and the in-memory session history.
//
// A Session owns the draft (mode, persona, platform, style, prompt, attached
// image, target folder) and a cosmetic progress step that advances on a
// timer while a request is running. Start clears the draft when the request
// begins and restores it if the request fails, so nothing the person typed
// is lost. Post and caption results are saved to the library; video results
// only live in the session history.
package generation
