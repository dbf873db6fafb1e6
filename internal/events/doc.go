// Package events carries domain events from the scheduling services to
// interested components without coupling them.
//
// Services publish an Event through an EventEmitter after their unit of work
// has committed; handlers registered on the emitter react to it. The only
// event published today is LessonCompleted.
package events
