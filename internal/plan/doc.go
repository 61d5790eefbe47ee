// Package plan computes which thumbnails a pass will produce.
//
// A Plan maps every output path to the source image and resize name that
// produce it. Output paths come from a template such as
//
//	{parent}/thumbnails/{stem}_{resize}{suffix}
//
// whose fields mirror the attributes of a Python pathlib path plus the resize
// name and its spec string. Files that are themselves planned outputs are
// never used as inputs, so repeated passes over an output tree that was not
// cleared do not produce thumbnails of thumbnails.
package plan
