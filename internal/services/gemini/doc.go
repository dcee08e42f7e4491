// Package gemini is the generation service client. It wraps the Google Gen
// AI SDK for post content with a generated background image, captions for an
// existing image, image edits, and Veo video generation.
//
// Every call checks for an API key before touching the network and returns
// errors tagged with the services markers so callers can tell quota
// exhaustion and credential problems apart from other failures.
package gemini
