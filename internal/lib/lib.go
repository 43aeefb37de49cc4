// Packages lib acts as a library for modules that do not fit
// strictly into other layers.
//
// It contains shared utilities, background job processing
// (an in-process worker queue), the websocket event hub and the
// HTML page renderer.
package lib
