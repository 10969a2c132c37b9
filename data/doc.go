/*
Package data contains the data structures shared by the sensor store, its
clients and the server.

[DecodeMessage] validates raw messages from producers and turns them into the
[Message] tagged union. [Entry] is the shape of one persisted reading.
*/
package data
