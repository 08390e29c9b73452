// Package dv parses and serializes raw DV frames at the DIF block level.
//
// A frame is a fixed grid of DIF sequences, each holding 150 blocks of 80
// bytes in a static transmission order (header, two subcode, three VAUX, then
// nine repetitions of one audio and fifteen video blocks). Block kinds are a
// function of position only. Each decoded block carries a status combining the
// capture device's side-channel error report with the checks the format embeds
// in the block itself: reserved fill bytes, subcode parity, the video STA
// nibble, and the audio error sample code.
//
// The package also decodes the auxiliary data needed downstream: AAUX source
// packs, subcode title timecodes, and the IEC 61834-2 audio shuffle.
package dv
