// Package assistant implements the tools the voice agent exposes to its
// language model: get_weather, send_notification and search_documents.
//
// The assistant holds a transport.Publisher supplied at construction and never
// owns it. Without one it runs detached: every tool still answers, and each
// dropped frontend message is logged and counted.
package assistant
